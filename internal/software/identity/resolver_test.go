package identity

import (
	"context"
	"errors"
	"testing"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

func TestResolveAppliesGrant(t *testing.T) {
	ctx := context.Background()
	layer := synclayer.New(memstore.New(nil), nil)
	_, _ = layer.Set(ctx, ports.CollectionUsers, "u1", map[string]any{"name": "Ana", "role": "CLIENT"}, false)

	r := NewResolver(layer)
	actor, err := r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if actor.Role != user.RoleClient {
		t.Fatalf("role = %s", actor.Role)
	}

	_, _ = layer.Set(ctx, ports.CollectionRoleGrants, "u1", map[string]any{"userId": "u1", "role": "MODERATOR", "grantedBy": "root"}, false)
	actor, err = r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if actor.Role != user.RoleModerator {
		t.Fatalf("grant not applied: %s", actor.Role)
	}
}

func TestResolveWithoutProfileIsForbidden(t *testing.T) {
	r := NewResolver(synclayer.New(memstore.New(nil), nil))
	_, err := r.Resolve(context.Background(), "ghost")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name  string
		actor user.Actor
		roles []user.Role
		ok    bool
	}{
		{"role allowed", user.Actor{Role: user.RoleDriver}, []user.Role{user.RoleDriver}, true},
		{"role denied", user.Actor{Role: user.RoleClient}, []user.Role{user.RoleDriver}, false},
		{"blocked", user.Actor{Role: user.RoleDriver, Blocked: true}, []user.Role{user.RoleDriver}, false},
		{"any role", user.Actor{Role: user.RoleModerator}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require("test", tt.actor, tt.roles...)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

// Package identity resolves who is acting and what they may do.
package identity

import (
	"context"
	"errors"
	"slices"
	"strings"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// Resolver reads a profile and its optional role grant.
type Resolver struct {
	layer *synclayer.Layer
}

// NewResolver builds a Resolver over the sync layer.
func NewResolver(layer *synclayer.Layer) *Resolver {
	return &Resolver{layer: layer}
}

// Resolve returns the actor behind userID. Users without a profile are
// forbidden from everything.
func (r *Resolver) Resolve(ctx context.Context, userID string) (user.Actor, error) {
	if strings.TrimSpace(userID) == "" {
		return user.Actor{}, apperr.E(apperr.KindForbidden, "identity.resolve", "unauthenticated", nil)
	}
	profile, err := records.User(ctx, r.layer, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return user.Actor{}, apperr.E(apperr.KindForbidden, "identity.resolve", "profile required", err)
		}
		return user.Actor{}, err
	}
	grant, err := records.RoleGrant(ctx, r.layer, userID)
	if err != nil {
		return user.Actor{}, err
	}
	return user.NewActor(profile, grant), nil
}

// Require fails with Forbidden unless the actor is unblocked and holds one
// of roles. With no roles any unblocked actor passes.
func Require(op string, actor user.Actor, roles ...user.Role) error {
	if actor.Blocked {
		return apperr.E(apperr.KindForbidden, op, "account is blocked", nil)
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return apperr.E(apperr.KindForbidden, op, "role not allowed", nil)
	}
	return nil
}

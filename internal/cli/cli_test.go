package cli

import (
	"testing"
	"time"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/jwt"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		args     []string
		wantMode string
		wantRest []string
		wantErr  bool
	}{
		{args: []string{"--mode=api-service", "--max-concurrent=5"}, wantMode: ModeAPI, wantRest: []string{"--max-concurrent=5"}},
		{args: []string{"api", "--config=x.yaml"}, wantMode: ModeAPI, wantRest: []string{"--config=x.yaml"}},
		{args: []string{"--mode=key", "--user=u1"}, wantMode: ModeToken, wantRest: []string{"--user=u1"}},
		{args: []string{"seed"}, wantMode: ModeSeed},
		{args: []string{"--max-concurrent=5"}, wantErr: true},
		{args: []string{"--mode=billing"}, wantErr: true},
	}
	for _, tc := range cases {
		mode, rest, err := ParseMode(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%v): expected error", tc.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%v): %v", tc.args, err)
			continue
		}
		if mode != tc.wantMode {
			t.Errorf("ParseMode(%v) mode = %q, want %q", tc.args, mode, tc.wantMode)
		}
		if len(rest) != len(tc.wantRest) {
			t.Errorf("ParseMode(%v) rest = %v, want %v", tc.args, rest, tc.wantRest)
			continue
		}
		for i := range rest {
			if rest[i] != tc.wantRest[i] {
				t.Errorf("ParseMode(%v) rest = %v, want %v", tc.args, rest, tc.wantRest)
			}
		}
	}
}

func TestGenerateUserToken(t *testing.T) {
	token, claims, err := GenerateUserToken("secret", time.Hour, "driver-1", "DRIVER")
	if err != nil {
		t.Fatalf("GenerateUserToken: %v", err)
	}
	if claims.Subject != "driver-1" || claims.Role != user.RoleDriver {
		t.Fatalf("claims = %+v", claims)
	}
	parsed, err := jwt.NewManager("secret", time.Hour, nil).ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if parsed.Subject != "driver-1" {
		t.Fatalf("subject = %q", parsed.Subject)
	}

	if _, _, err := GenerateUserToken("secret", time.Hour, "u", "PASSENGER"); err == nil {
		t.Fatal("expected an error for an unknown role")
	}
	if _, _, err := GenerateUserToken("secret", time.Hour, "", "CLIENT"); err == nil {
		t.Fatal("expected an error for an empty user id")
	}
	if _, _, err := GenerateUserToken("  ", time.Hour, "u", "CLIENT"); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}

package cli

import (
	"fmt"
	"strings"
	"time"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/jwt"
)

// GenerateUserToken mints an access token for userID with the given role.
// The role in the token is advisory: services resolve the effective role
// from the stored profile and grants.
//
// Dev-only. Do not call it from production code paths.
func GenerateUserToken(secret string, ttl time.Duration, userID, roleStr string) (string, jwt.Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return "", jwt.Claims{}, fmt.Errorf("jwt secret is required")
	}
	if userID == "" {
		return "", jwt.Claims{}, fmt.Errorf("user id is required")
	}
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	mgr := jwt.NewManager(secret, ttl, nil)
	token, claims, err := mgr.IssueUserToken(userID, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}
	return token, *claims, nil
}

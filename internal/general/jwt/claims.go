package jwt

import (
	"time"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/ports"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	audienceAccess = "ridemarket"
	audienceQuote  = "ridemarket-quote"
)

// Claims is the access token payload. Role is the role at issue time; the
// effective role is always resolved again from the store.
type Claims struct {
	Role user.Role `json:"role"`
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs access claims for userID.
func NewUserClaims(userID string, role user.Role, now time.Time, ttl time.Duration) *Claims {
	now = now.UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Audience:  jwtlib.ClaimStrings{audienceAccess},
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// QuoteClaims carries a priced quote so the rider books exactly the price
// that was shown.
type QuoteClaims struct {
	Quote ports.Quote `json:"quote"`
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*QuoteClaims)(nil)

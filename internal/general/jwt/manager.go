package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/ports"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader       = errors.New("authorization header missing")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrRoleForbidden      = errors.New("role not allowed")
	ErrInvalidQuoteToken  = errors.New("invalid quote token")
)

// Manager handles JWT creation and validation.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
	clock     clock.Clock
}

// NewManager creates a token manager.
func NewManager(secret string, accessTTL time.Duration, clk clock.Clock) *Manager {
	s := strings.TrimSpace(secret)
	if s == "" {
		panic("jwt: empty secret key")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		secret:    []byte(s),
		accessTTL: accessTTL,
		clock:     clk,
	}
}

// IssueUserToken returns a signed access token for a user.
func (m *Manager) IssueUserToken(userID string, role user.Role) (string, *Claims, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, fmt.Errorf("user id is required")
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}

	claims := NewUserClaims(userID, role, m.clock.Now(), m.accessTTL)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	return signed, claims, err
}

// FromAuthorization reads "Authorization: Bearer <token>", falling back to
// the access_token query parameter used by browser websockets.
func FromAuthorization(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", fmt.Errorf("malformed Authorization header")
		}
		return strings.TrimSpace(token), nil
	}
	if q := r.URL.Query().Get("access_token"); q != "" {
		return q, nil
	}
	return "", ErrNoAuthHeader
}

// ParseAndValidate verifies signature, expiry and audience of an access token.
func (m *Manager) ParseAndValidate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, audienceAccess, true); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueQuoteToken signs q. The token expires with the quote.
func (m *Manager) IssueQuoteToken(q *ports.Quote) (string, error) {
	claims := &QuoteClaims{
		Quote: *q,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Audience:  jwtlib.ClaimStrings{audienceQuote},
			IssuedAt:  jwtlib.NewNumericDate(q.IssuedAt),
			ExpiresAt: jwtlib.NewNumericDate(q.ExpiresAt),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseQuoteToken returns the quote carried by a token signed by this
// manager. Expiry is left to the caller so stale quotes can be reported
// as such.
func (m *Manager) ParseQuoteToken(tokenString string) (*ports.Quote, error) {
	claims := &QuoteClaims{}
	if err := m.parse(tokenString, claims, audienceQuote, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuoteToken, err)
	}
	return &claims.Quote, nil
}

func (m *Manager) parse(tokenString string, claims jwtlib.Claims, audience string, validateTime bool) error {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(m.clock.Now),
	}
	if validateTime {
		opts = append(opts, jwtlib.WithAudience(audience), jwtlib.WithExpirationRequired())
	} else {
		opts = append(opts, jwtlib.WithoutClaimsValidation())
	}

	token, err := jwtlib.NewParser(opts...).ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	if !validateTime {
		aud, err := claims.GetAudience()
		if err != nil || !slices.Contains(aud, audience) {
			return errors.New("token audience mismatch")
		}
	}
	return nil
}

// RoleAllowed asserts the claims' role is one of the allowed. No roles
// means any role.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if len(allowed) == 0 || slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

type ctxKey string

const claimsCtxKey ctxKey = "jwtClaims"

// InjectClaims adds JWT claims to the context.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// FromContext extracts JWT claims from the context.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*Claims)
	return c, ok
}

// Package auth issues and verifies the bearer tokens used on
// authenticated subscription management endpoints.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/config"
	"go.uber.org/fx"
)

var (
	ErrNotConfigured = errors.New("auth_not_configured")
	ErrInvalidToken  = errors.New("invalid_token")
)

// Claims carries the token subject plus the tier it was issued under.
// Tier is informational; entitlement checks always read the live record.
type Claims struct {
	Tier string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	issuer string
}

type TokenServiceParam struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
}

func NewTokenService(p TokenServiceParam) *TokenService {
	return &TokenService{
		secret: []byte(p.Config.AuthJWTSecret),
		ttl:    time.Duration(p.Config.AuthTokenTTLMin) * time.Minute,
		clock:  p.Clock,
		issuer: p.Config.AppName,
	}
}

// Issue mints a token for a user. The expiry is returned alongside the
// signed token so handlers can report it without re-parsing.
func (s *TokenService) Issue(userID, tier string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Tier: tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses and validates a token, returning its claims.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var Module = fx.Module("auth",
	fx.Provide(NewTokenService),
)

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/transcope/fleet-auth/internal/core/domain"
	"github.com/transcope/fleet-auth/internal/core/ports"
)

const defaultTokenTTL = 24 * time.Hour

var errNoSigningKey = errors.New("token signing key is empty")

// tokenClaims is the JWT payload: sub carries the user id, jti the token id.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. When a
// RevocationStore is configured, verified tokens are also checked against it.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	revocations ports.RevocationStore
	now         func() time.Time
	log         zerolog.Logger
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithRevocations enables the revocation check on Verify and makes Revoke effective.
func WithRevocations(store ports.RevocationStore) TokenOption {
	return func(s *TokenService) { s.revocations = store }
}

// WithLogger attaches a logger for non-fatal revocation store failures.
func WithLogger(log zerolog.Logger) TokenOption {
	return func(s *TokenService) { s.log = log }
}

func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a fresh token for user.
func (s *TokenService) Issue(user *domain.User) (string, *domain.Claims, error) {
	if len(s.secret) == 0 {
		return "", nil, errNoSigningKey
	}
	now := s.now().UTC().Truncate(time.Second)
	claims := &domain.Claims{
		TokenID:   uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: user.Role.Wire(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.TokenID,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses raw, checks signature, expiry and revocation.
func (s *TokenService) Verify(ctx context.Context, raw string) (*domain.Claims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, errNoSigningKey)
	}
	var tc tokenClaims
	tkn, err := jwt.ParseWithClaims(raw, &tc, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: token missing subject", domain.ErrUnauthorized)
	}
	role, err := domain.ParseWireRole(tc.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims := &domain.Claims{
		TokenID: tc.ID,
		UserID:  tc.Subject,
		Role:    role,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}

	if s.revocations != nil && claims.TokenID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("user_id", claims.UserID).Msg("revocation check failed, accepting token")
		case revoked:
			return nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
		}
	}
	return claims, nil
}

// Revoke denylists the token until its expiry. It is a no-op without a
// RevocationStore or for an already expired token.
func (s *TokenService) Revoke(ctx context.Context, claims *domain.Claims) error {
	if s.revocations == nil || claims == nil || claims.TokenID == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

package ports

import (
	"context"
	"time"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

// TokenVerifier resolves a raw bearer token into verified claims.
// Any failure is reported as domain.ErrUnauthorized.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*domain.Claims, error)
}

// RevocationStore remembers revoked token ids until their natural expiry.
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

package ports

import (
	"context"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

// UserRepository defines persistence operations for users. Implementations
// must be safe for concurrent use.
type UserRepository interface {
	// FindByEmail matches case-insensitively. Returns domain.ErrUserNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByID returns domain.ErrUserNotFound when absent.
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create assigns ID and CreatedAt and returns the stored record.
	// A duplicate email yields domain.ErrUserExists.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// GetAll returns every user in insertion order.
	GetAll(ctx context.Context) ([]*domain.User, error)
}

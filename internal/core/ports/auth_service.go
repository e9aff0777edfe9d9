package ports

import (
	"context"
	"time"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

// SignupInput is the DTO passed from the transport layer to AuthService.Signup.
// Role is in wire form; empty means the default role.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// AuthResult is returned by a successful signup or login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// ForgotPasswordResult is always success-shaped.
type ForgotPasswordResult struct {
	Success bool
	Message string
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetMe(ctx context.Context, userID string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error)
	Logout(ctx context.Context, claims *domain.Claims) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

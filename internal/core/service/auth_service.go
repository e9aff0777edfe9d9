package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/transcope/fleet-auth/internal/core/domain"
	"github.com/transcope/fleet-auth/internal/core/ports"
)

const forgotPasswordMessage = "If an account exists for that email, password reset instructions have been sent"

// TokenIssuer abstracts token issuance and revocation (TokenService).
type TokenIssuer interface {
	Issue(user *domain.User) (string, *domain.Claims, error)
	Revoke(ctx context.Context, claims *domain.Claims) error
}

// AuthService implements signup, login and identity lookup.
type AuthService struct {
	repo       ports.UserRepository
	tokens     TokenIssuer
	events     ports.EventSink
	bcryptCost int
	validator  *structValidator
	log        zerolog.Logger
	now        func() time.Time

	// guardHash is compared against on unknown-email logins.
	guardHash []byte
}

// NewAuthService wires the service. events may be nil; bcryptCost <= 0 uses bcrypt.DefaultCost.
func NewAuthService(repo ports.UserRepository, tokens TokenIssuer, events ports.EventSink, bcryptCost int, log zerolog.Logger) *AuthService {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	guardHash, err := bcrypt.GenerateFromPassword([]byte("transcope-login-guard"), bcryptCost)
	if err != nil {
		log.Warn().Err(err).Msg("could not build login guard hash")
	}
	return &AuthService{
		repo:       repo,
		tokens:     tokens,
		events:     events,
		bcryptCost: bcryptCost,
		validator:  newStructValidator(),
		log:        log,
		now:        time.Now,
		guardHash:  guardHash,
	}
}

func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.AuthResult, error) {
	fields := signupFields{
		Name:     strings.TrimSpace(in.Name),
		Email:    domain.NormalizeEmail(in.Email),
		Password: in.Password,
		Role:     strings.TrimSpace(in.Role),
	}
	if err := s.validator.validate(fields); err != nil {
		return nil, err
	}

	role := domain.DefaultRole
	if fields.Role != "" {
		parsed, err := domain.ParseWireRole(fields.Role)
		if err != nil {
			return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "role", Message: "Invalid role"}}}
		}
		role = parsed
	}

	if _, err := s.repo.FindByEmail(ctx, fields.Email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("signup: lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(fields.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "password", Message: fieldMessages["password.maxbytes"]}}}
		}
		return nil, fmt.Errorf("signup: hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, &domain.User{
		Name:         fields.Name,
		Email:        fields.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("signup: create user: %w", err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	s.emit(domain.EventUserSignedUp, user)
	s.log.Info().Str("user_id", user.ID).Str("role", role.Wire()).Msg("user signed up")
	return result, nil
}

// Login returns domain.ErrInvalidCredentials for both an unknown email and a
// wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	fields := loginFields{Email: domain.NormalizeEmail(email), Password: password}
	if err := s.validator.validate(fields); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByEmail(ctx, fields.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.burnCompare(password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: lookup email: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.emit(domain.EventUserLoggedIn, user)
	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

func (s *AuthService) GetMe(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get me: %w", err)
	}
	return user, nil
}

// ForgotPassword never reveals whether the email is registered and performs
// no reset.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*ports.ForgotPasswordResult, error) {
	s.log.Info().Msg("password reset requested")
	return &ports.ForgotPasswordResult{Success: true, Message: forgotPasswordMessage}, nil
}

// Logout revokes the presented token until its expiry.
func (s *AuthService) Logout(ctx context.Context, claims *domain.Claims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Str("user_id", claims.UserID).Msg("user logged out")
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *AuthService) issue(user *domain.User) (*ports.AuthResult, error) {
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &ports.AuthResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

func (s *AuthService) emit(t domain.AuthEventType, user *domain.User) {
	if s.events == nil {
		return
	}
	s.events.Emit(domain.AuthEvent{
		Type:       t,
		UserID:     user.ID,
		Role:       user.Role,
		OccurredAt: s.now().UTC(),
	})
}

// burnCompare spends one bcrypt comparison so an unknown email costs about
// the same as a wrong password.
func (s *AuthService) burnCompare(password string) {
	if s.guardHash != nil {
		_ = bcrypt.CompareHashAndPassword(s.guardHash, []byte(password))
	}
}

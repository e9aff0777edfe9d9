package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

type stubRevocations struct {
	revoked map[string]time.Duration
	err     error
}

func newStubRevocations() *stubRevocations {
	return &stubRevocations{revoked: make(map[string]time.Duration)}
}

func (s *stubRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.revoked[id]
	return ok, nil
}

func (s *stubRevocations) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.revoked[id] = ttl
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestTokenService_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewTokenService("secret", time.Hour, WithClock(clock.Now))
	user := &domain.User{ID: "user-1", Role: domain.RoleManager}

	token, issued, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !issued.ExpiresAt.Equal(clock.t.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", issued.ExpiresAt)
	}

	clock.t = clock.t.Add(59 * time.Minute)
	claims, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != domain.RoleManager {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, _, err := issuer.Issue(&domain.User{ID: "u", Role: domain.RoleDispatcher})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub":  "u",
		"role": "manager",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(context.Background(), signed); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected HS512 token to be rejected, got %v", err)
	}
}

func TestTokenService_RejectsMissingExpiryAndBadRole(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "role": "manager"}).SignedString([]byte("secret"))
	if _, err := svc.Verify(context.Background(), noExp); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected token without exp to be rejected, got %v", err)
	}

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "u",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if _, err := svc.Verify(context.Background(), badRole); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
}

func TestTokenService_RevocationStoreFailureFailsOpen(t *testing.T) {
	store := newStubRevocations()
	store.err = errors.New("redis down")
	svc := NewTokenService("secret", time.Hour, WithRevocations(store))

	token, _, _ := svc.Issue(&domain.User{ID: "u", Role: domain.RoleDispatcher})
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("expected token to be accepted when store is unavailable, got %v", err)
	}
}

func TestTokenService_RevokeUsesRemainingLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newStubRevocations()
	svc := NewTokenService("secret", time.Hour, WithClock(clock.Now), WithRevocations(store))

	_, claims, _ := svc.Issue(&domain.User{ID: "u", Role: domain.RoleDispatcher})
	clock.t = clock.t.Add(15 * time.Minute)
	if err := svc.Revoke(context.Background(), claims); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if got := store.revoked[claims.TokenID]; got != 45*time.Minute {
		t.Fatalf("expected 45m ttl, got %v", got)
	}

	clock.t = clock.t.Add(2 * time.Hour)
	_, expired, _ := svc.Issue(&domain.User{ID: "u", Role: domain.RoleDispatcher})
	expired.ExpiresAt = clock.t.Add(-time.Second)
	if err := svc.Revoke(context.Background(), expired); err != nil {
		t.Fatalf("Revoke of expired token returned error: %v", err)
	}
	if _, ok := store.revoked[expired.TokenID]; ok {
		t.Fatalf("expired token should not be stored")
	}
}

func TestTokenService_EmptySecretNeverSignsOrVerifies(t *testing.T) {
	svc := NewTokenService("", time.Hour)
	if _, _, err := svc.Issue(&domain.User{ID: "u", Role: domain.RoleManager}); err == nil {
		t.Fatalf("expected Issue to fail without a signing key")
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "u",
		"role": "manager",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(""))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(context.Background(), forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

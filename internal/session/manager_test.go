package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/transcope/fleet-auth/internal/api"
	"github.com/transcope/fleet-auth/internal/client"
	"github.com/transcope/fleet-auth/internal/core/service"
	"github.com/transcope/fleet-auth/internal/infrastructure/db/memory"
)

type stubAuth struct {
	storage   client.Storage
	user      *client.User
	err       error
	meErr     error
	revoked   []string
	logoutErr error
}

func (s *stubAuth) Login(_ context.Context, _, _ string) (*client.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	_ = s.storage.Set(client.KeyToken, "tok-"+s.user.ID)
	return s.user, nil
}

func (s *stubAuth) Signup(ctx context.Context, _, email, password, _ string) (*client.User, error) {
	return s.Login(ctx, email, password)
}

func (s *stubAuth) GetMe(context.Context) (*client.User, error) {
	if s.meErr != nil {
		return nil, s.meErr
	}
	return s.user, nil
}

func (s *stubAuth) Logout(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return s.logoutErr
}

func newStub(storage client.Storage) *stubAuth {
	return &stubAuth{
		storage: storage,
		user:    &client.User{ID: "u1", Name: "Jane", Email: "jane@x.com", Role: "MANAGER"},
	}
}

func TestManager_StartsEmpty(t *testing.T) {
	storage := client.NewMemoryStorage()
	m, err := NewManager(newStub(storage), storage)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if m.IsAuthenticated() || m.User() != nil {
		t.Fatalf("expected no session")
	}
	if m.HasRole("MANAGER", "DISPATCHER") {
		t.Fatalf("HasRole must be false without a session")
	}
}

func TestManager_LoginPersistsAndNotifies(t *testing.T) {
	storage := client.NewMemoryStorage()
	m, _ := NewManager(newStub(storage), storage)

	var seen []*client.User
	unsubscribe := m.Subscribe(func(u *client.User) { seen = append(seen, u) })

	u, err := m.Login(context.Background(), "jane@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if u.Role != "MANAGER" || !m.IsAuthenticated() {
		t.Fatalf("unexpected state after login: %+v", u)
	}
	if !m.HasRole("MANAGER") || m.HasRole("DISPATCHER", "SAFETY_OFFICER") {
		t.Fatalf("HasRole does not reflect membership")
	}
	if role, ok, _ := storage.Get(client.KeyRole); !ok || role != "MANAGER" {
		t.Fatalf("role not persisted: %q", role)
	}
	if _, ok, _ := storage.Get(client.KeyUser); !ok {
		t.Fatalf("user not persisted")
	}
	if len(seen) != 1 || seen[0].ID != "u1" {
		t.Fatalf("expected one notification, got %+v", seen)
	}

	unsubscribe()
	unsubscribe()
	_ = m.Logout(context.Background())
	if len(seen) != 1 {
		t.Fatalf("unsubscribed listener was notified")
	}
}

func TestManager_LoginFailureKeepsState(t *testing.T) {
	storage := client.NewMemoryStorage()
	stub := newStub(storage)
	stub.err = &client.Error{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	m, _ := NewManager(stub, storage)

	if _, err := m.Login(context.Background(), "jane@x.com", "bad"); client.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 client error, got %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatalf("failed login must not create a session")
	}
}

func TestManager_RehydratesCachedUser(t *testing.T) {
	storage := client.NewMemoryStorage()
	first, _ := NewManager(newStub(storage), storage)
	if _, err := first.Login(context.Background(), "jane@x.com", "secret1"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	stub := newStub(storage)
	stub.meErr = errors.New("must not be called")
	second, err := NewManager(stub, storage)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if u := second.User(); u == nil || u.ID != "u1" || u.Role != "MANAGER" {
		t.Fatalf("expected cached user, got %+v", u)
	}
}

func TestManager_DiscardsCorruptCache(t *testing.T) {
	storage := client.NewMemoryStorage()
	_ = storage.Set(client.KeyUser, "{broken")
	_ = storage.Set(client.KeyToken, "tok")

	m, err := NewManager(newStub(storage), storage)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatalf("corrupt cache must not authenticate")
	}
	if _, ok, _ := storage.Get(client.KeyToken); ok {
		t.Fatalf("stale token should be cleared")
	}
}

func TestManager_LogoutClearsEverythingAndRevokes(t *testing.T) {
	storage := client.NewMemoryStorage()
	stub := newStub(storage)
	stub.logoutErr = errors.New("server down")
	m, _ := NewManager(stub, storage)
	_, _ = m.Login(context.Background(), "jane@x.com", "secret1")

	var notified bool
	m.Subscribe(func(u *client.User) { notified = u == nil })

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	for _, k := range []string{client.KeyUser, client.KeyRole, client.KeyToken} {
		if _, ok, _ := storage.Get(k); ok {
			t.Fatalf("%s not cleared", k)
		}
	}
	if m.IsAuthenticated() || !notified {
		t.Fatalf("expected cleared state and nil notification")
	}
	if len(stub.revoked) != 1 || stub.revoked[0] != "tok-u1" {
		t.Fatalf("expected old token to be revoked, got %v", stub.revoked)
	}
}

func TestManager_RevalidateClearsOnUnauthorized(t *testing.T) {
	storage := client.NewMemoryStorage()
	stub := newStub(storage)
	m, _ := NewManager(stub, storage)
	_, _ = m.Login(context.Background(), "jane@x.com", "secret1")

	stub.meErr = &client.Error{Status: http.StatusServiceUnavailable, Message: "Request failed"}
	if _, err := m.Revalidate(context.Background()); err == nil || !m.IsAuthenticated() {
		t.Fatalf("transient failure must keep the session")
	}

	stub.meErr = &client.Error{Status: http.StatusUnauthorized, Message: "Not authorized, token failed"}
	if _, err := m.Revalidate(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if m.IsAuthenticated() {
		t.Fatalf("401 must clear the session")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	storage := client.NewMemoryStorage()
	m, _ := NewManager(newStub(storage), storage)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Login(context.Background(), "jane@x.com", "secret1")
		}()
		go func() {
			defer wg.Done()
			_ = m.HasRole("MANAGER")
			_ = m.User()
		}()
	}
	wg.Wait()
	if !m.IsAuthenticated() {
		t.Fatalf("expected session after concurrent logins")
	}
}

func TestManager_RacingUpdatesLeaveSubscribersOnFinalState(t *testing.T) {
	storage := client.NewMemoryStorage()
	m, _ := NewManager(newStub(storage), storage)

	var (
		mu   sync.Mutex
		last *client.User
		hits int
	)
	m.Subscribe(func(u *client.User) {
		mu.Lock()
		last = u
		hits++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				_ = m.set(nil)
				return
			}
			_ = m.set(&client.User{ID: fmt.Sprintf("u%d", i), Role: "DISPATCHER"})
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if hits != 50 {
		t.Fatalf("expected 50 notifications, got %d", hits)
	}
	final := m.User()
	switch {
	case final == nil && last != nil:
		t.Fatalf("subscriber last saw %q but session is empty", last.ID)
	case final != nil && (last == nil || last.ID != final.ID):
		t.Fatalf("subscriber last saw %+v, session holds %q", last, final.ID)
	}
}

func TestManager_EndToEnd(t *testing.T) {
	tokens := service.NewTokenService("test-secret", time.Hour, service.WithRevocations(memory.NewRevocationStore()))
	authService := service.NewAuthService(memory.NewUserRepository(), tokens, nil, bcrypt.MinCost, zerolog.Nop())
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		AuthService: authService,
		Tokens:      tokens,
		Registerer:  prometheus.NewRegistry(),
		Log:         zerolog.Nop(),
	}))
	defer srv.Close()

	storage := client.NewMemoryStorage()
	m, err := NewManager(client.New(srv.URL, storage), storage)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	ctx := context.Background()

	signed, err := m.Signup(ctx, "Jane", "jane@x.com", "secret1", "MANAGER")
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if signed.Role != "MANAGER" || !m.HasRole("MANAGER") {
		t.Fatalf("unexpected session after signup: %+v", signed)
	}

	logged, err := m.Login(ctx, "jane@x.com", "secret1")
	if err != nil || logged.ID != signed.ID {
		t.Fatalf("expected same user id on login, got %+v, %v", logged, err)
	}

	if _, err := m.Login(ctx, "jane@x.com", "wrong"); client.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !m.IsAuthenticated() {
		t.Fatalf("failed login must not clear existing session")
	}

	if u, err := m.Revalidate(ctx); err != nil || u.ID != signed.ID {
		t.Fatalf("Revalidate: %+v, %v", u, err)
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if m.IsAuthenticated() || m.HasRole("MANAGER") {
		t.Fatalf("expected no session after logout")
	}
}

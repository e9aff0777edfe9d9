// Package session owns the current identity of a client process: it
// rehydrates from storage once, updates on login/signup, clears on logout and
// notifies subscribers of every change.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/transcope/fleet-auth/internal/client"
)

// Authenticator is the subset of *client.Client the manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*client.User, error)
	Signup(ctx context.Context, name, email, password, role string) (*client.User, error)
	GetMe(ctx context.Context) (*client.User, error)
	Logout(ctx context.Context, token string) error
}

type Manager struct {
	auth    Authenticator
	storage client.Storage
	log     zerolog.Logger

	// notifyMu serializes deliveries; it is always taken before mu.
	notifyMu sync.Mutex

	mu     sync.Mutex
	user   *client.User
	subs   map[int]func(*client.User)
	nextID int
}

type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager restores the cached user, if any. The cached user is trusted as
// is; call Revalidate to confirm it against the server.
func NewManager(auth Authenticator, storage client.Storage, opts ...Option) (*Manager, error) {
	m := &Manager{
		auth:    auth,
		storage: storage,
		log:     zerolog.Nop(),
		subs:    make(map[int]func(*client.User)),
	}
	for _, opt := range opts {
		opt(m)
	}

	raw, ok, err := storage.Get(client.KeyUser)
	if err != nil {
		return nil, fmt.Errorf("session: read cached user: %w", err)
	}
	if !ok {
		return m, nil
	}

	var u client.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
		m.log.Warn().Msg("discarding unreadable cached user")
		if err := m.persist(nil); err != nil {
			return nil, err
		}
		return m, nil
	}
	m.user = &u
	return m, nil
}

func (m *Manager) Login(ctx context.Context, email, password string) (*client.User, error) {
	u, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.set(u); err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (m *Manager) Signup(ctx context.Context, name, email, password, role string) (*client.User, error) {
	u, err := m.auth.Signup(ctx, name, email, password, role)
	if err != nil {
		return nil, err
	}
	if err := m.set(u); err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

// Logout clears local state first, then asks the server to revoke the old
// token. Revocation failures are logged, not returned.
func (m *Manager) Logout(ctx context.Context) error {
	token, _, err := m.storage.Get(client.KeyToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("could not read token before logout")
	}
	if err := m.set(nil); err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if err := m.auth.Logout(ctx, token); err != nil {
		m.log.Warn().Err(err).Msg("server-side logout failed")
	}
	return nil
}

// Revalidate confirms the session with the server and refreshes the cached
// user. A 401 or 404 clears the session.
func (m *Manager) Revalidate(ctx context.Context) (*client.User, error) {
	u, err := m.auth.GetMe(ctx)
	if err != nil {
		switch client.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusNotFound:
			if clearErr := m.set(nil); clearErr != nil {
				return nil, clearErr
			}
		}
		return nil, err
	}
	if err := m.set(u); err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

// HasRole reports whether the current user's session role is one of allowed.
func (m *Manager) HasRole(allowed ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return false
	}
	for _, r := range allowed {
		if r == m.user.Role {
			return true
		}
	}
	return false
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *client.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.user)
}

// Subscribe registers fn to be called after every state change. The returned
// func removes it.
func (m *Manager) Subscribe(fn func(*client.User)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// set replaces the current user, persists it and notifies subscribers.
// Every delivery carries the state current at delivery time, so after racing
// updates the last value a subscriber sees is the manager's final user.
// Subscribers must not change the session from inside the callback.
func (m *Manager) set(u *client.User) error {
	m.mu.Lock()
	if err := m.persist(u); err != nil {
		m.mu.Unlock()
		return err
	}
	m.user = copyUser(u)
	m.mu.Unlock()

	m.notify()
	return nil
}

func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	state := copyUser(m.user)
	subs := make([]func(*client.User), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(copyUser(state))
	}
}

func (m *Manager) persist(u *client.User) error {
	if u == nil {
		if err := m.storage.Remove(client.KeyUser, client.KeyRole, client.KeyToken); err != nil {
			return fmt.Errorf("session: clear storage: %w", err)
		}
		return nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	if err := m.storage.Set(client.KeyUser, string(b)); err != nil {
		return fmt.Errorf("session: store user: %w", err)
	}
	if err := m.storage.Set(client.KeyRole, u.Role); err != nil {
		return fmt.Errorf("session: store role: %w", err)
	}
	return nil
}

func copyUser(u *client.User) *client.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Package client is the Go counterpart of the dashboard's auth service: it
// calls the auth API, translates roles to session form and persists the
// bearer token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Storage keys shared with the session manager.
const (
	KeyUser  = "transcope_user"
	KeyRole  = "transcope_role"
	KeyToken = "transcope_token"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRole    = "dispatcher"

	msgInvalidCredentials = "Invalid credentials"
	msgSignupFailed       = "Signup failed"
	msgRequestFailed      = "Request failed"
)

// User is the public user view with Role in session form (e.g. "MANAGER").
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// DirectoryEntry is a row of the manager-only user listing.
type DirectoryEntry struct {
	User
	CreatedAt time.Time `json:"created_at"`
}

type ForgotPasswordResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Client struct {
	baseURL string
	http    *http.Client
	storage Storage
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, storage Storage, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		storage: storage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type authEnvelope struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out authEnvelope
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, false, &out, msgInvalidCredentials); err != nil {
		return nil, err
	}
	return c.persistAuth(out)
}

// Signup registers an account. role is in session form; empty means
// dispatcher.
func (c *Client) Signup(ctx context.Context, name, email, password, role string) (*User, error) {
	wire := defaultRole
	if role != "" {
		wire = WireRole(role)
	}
	var out authEnvelope
	body := map[string]string{"name": name, "email": email, "password": password, "role": wire}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, false, &out, msgSignupFailed); err != nil {
		return nil, err
	}
	return c.persistAuth(out)
}

// GetMe fetches the identity behind the stored token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, true, &out, msgRequestFailed); err != nil {
		return nil, err
	}
	out.Data.Role = SessionRole(out.Data.Role)
	return &out.Data, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	var out ForgotPasswordResult
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", body, false, &out, msgRequestFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the server to revoke token, or the stored token when empty.
// It does not touch storage.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		stored, ok, err := c.storage.Get(KeyToken)
		if err != nil {
			return &Error{Message: msgRequestFailed, Err: err}
		}
		if !ok {
			return nil
		}
		token = stored
	}
	return c.send(ctx, http.MethodPost, "/auth/logout", nil, token, nil, msgRequestFailed)
}

// ListUsers returns the user directory. The server only allows managers.
func (c *Client) ListUsers(ctx context.Context) ([]DirectoryEntry, error) {
	var out struct {
		Data []DirectoryEntry `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, true, &out, msgRequestFailed); err != nil {
		return nil, err
	}
	for i := range out.Data {
		out.Data[i].Role = SessionRole(out.Data[i].Role)
	}
	return out.Data, nil
}

func (c *Client) persistAuth(out authEnvelope) (*User, error) {
	if out.Token != "" {
		if err := c.storage.Set(KeyToken, out.Token); err != nil {
			return nil, &Error{Message: "store token", Err: err}
		}
	}
	u := out.User
	u.Role = SessionRole(u.Role)
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, withToken bool, out any, fallback string) error {
	var token string
	if withToken {
		stored, _, err := c.storage.Get(KeyToken)
		if err != nil {
			return &Error{Message: fallback, Err: err}
		}
		token = stored
	}
	return c.send(ctx, method, path, in, token, out, fallback)
}

func (c *Client) send(ctx context.Context, method, path string, in any, token string, out any, fallback string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: fallback, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Message: fallback, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Status: resp.StatusCode, Message: fallback, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env struct {
			Message string `json:"message"`
		}
		msg := fallback
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Status: resp.StatusCode, Message: fallback, Err: fmt.Errorf("decode %s: %w", path, err)}
		}
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepository creates the users table when missing.
func NewUserRepository(ctx context.Context, db *sql.DB) (*UserRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	r := &UserRepository{db: db, now: time.Now}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *UserRepository) ensureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS users (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	stored := *user
	stored.ID = uuid.NewString()
	stored.Email = domain.NormalizeEmail(user.Email)
	stored.CreatedAt = r.now().UTC().Truncate(time.Microsecond)

	const q = `INSERT INTO users (id, name, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q,
		stored.ID, stored.Name, stored.Email, stored.PasswordHash, stored.Role.Wire(), stored.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &stored, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = $1`
	return r.queryOne(ctx, q, domain.NormalizeEmail(email))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = $1`
	return r.queryOne(ctx, q, id)
}

func (r *UserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	const q = `SELECT id, name, email, password_hash, role, created_at FROM users ORDER BY created_at, seq`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) queryOne(ctx context.Context, q string, arg string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	parsed, err := domain.ParseWireRole(role)
	if err != nil {
		return nil, fmt.Errorf("decode user %s: %w", u.ID, err)
	}
	u.Role = parsed
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

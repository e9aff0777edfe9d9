package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.User{Name: "Jane", Email: " Jane@X.com ", Role: domain.RoleManager})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be assigned")
	}
	if created.Email != "jane@x.com" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}

	byEmail, err := repo.FindByEmail(ctx, "JANE@x.com")
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("FindByEmail returned %s, want %s", byEmail.ID, created.ID)
	}

	byID, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if byID.Email != "jane@x.com" {
		t.Fatalf("unexpected user: %+v", byID)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository()
	if _, err := repo.FindByEmail(context.Background(), "ghost@x.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.FindByID(context.Background(), "nope"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, &domain.User{Email: "a@x.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := repo.Create(ctx, &domain.User{Email: "A@X.COM"}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	all, _ := repo.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(all))
	}
}

func TestUserRepository_GetAllPreservesOrder(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	emails := []string{"c@x.com", "a@x.com", "b@x.com"}
	for _, e := range emails {
		if _, err := repo.Create(ctx, &domain.User{Email: e}); err != nil {
			t.Fatalf("create %s: %v", e, err)
		}
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	for i, u := range all {
		if u.Email != emails[i] {
			t.Fatalf("position %d: got %s, want %s", i, u.Email, emails[i])
		}
	}
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	created, _ := repo.Create(ctx, &domain.User{Name: "Jane", Email: "jane@x.com"})
	created.Name = "mutated"

	got, _ := repo.FindByID(ctx, created.ID)
	if got.Name != "Jane" {
		t.Fatalf("stored record was mutated through returned pointer")
	}
}

func TestUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Create(ctx, &domain.User{Email: "race@x.com"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful create, got %d", successes)
	}
}

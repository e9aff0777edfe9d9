package client

import (
	"os"
	"path/filepath"
	"testing"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	if _, ok, err := s.Get(KeyToken); err != nil || ok {
		t.Fatalf("expected empty storage, got ok=%v err=%v", ok, err)
	}
	for k, v := range map[string]string{KeyUser: `{"id":"u1"}`, KeyRole: "MANAGER", KeyToken: "tok"} {
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if v, ok, _ := s.Get(KeyRole); !ok || v != "MANAGER" {
		t.Fatalf("unexpected role value %q", v)
	}
	if err := s.Remove(KeyUser, KeyRole, KeyToken); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, k := range []string{KeyUser, KeyRole, KeyToken} {
		if _, ok, _ := s.Get(k); ok {
			t.Fatalf("%s still present after Remove", k)
		}
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	exerciseStorage(t, NewFileStorage(path))
}

func TestFileStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := NewFileStorage(path).Set(KeyToken, "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := NewFileStorage(path).Get(KeyToken); err != nil || !ok || v != "tok" {
		t.Fatalf("expected persisted token, got %q ok=%v err=%v", v, ok, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewFileStorage(path).Get(KeyToken); err == nil {
		t.Fatalf("expected decode error")
	}
}

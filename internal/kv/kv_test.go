package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// exerciseStore runs the shared Store contract against a backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if ok {
		t.Fatal("Get(missing) ok = true, want false")
	}

	if err := s.Set(ctx, "searchHistory", `["Paris"]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "searchHistory", `["London","Paris"]`); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, ok, err := s.Get(ctx, "searchHistory")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != `["London","Paris"]` {
		t.Errorf("Get() = (%q, %v), want latest value", got, ok)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStore_CanceledContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Error("Set() with canceled context error = nil")
	}
	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Error("Get() with canceled context error = nil")
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "kv.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	exerciseStore(t, s)
}

// TestFileStore_SurvivesReopen verifies values written by one FileStore are
// visible to a new FileStore on the same path.
func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := first.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, ok, err := second.Get(context.Background(), "k")
	if err != nil || !ok || got != "v" {
		t.Errorf("Get() after reopen = (%q, %v, %v), want (v, true, nil)", got, ok, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("Get() on corrupt file error = nil, want parse error")
	}
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() on corrupt file error = %v, want replacement", err)
	}
	got, ok, err := s.Get(context.Background(), "k")
	if err != nil || !ok || got != "v" {
		t.Errorf("Get() after replacement = (%q, %v, %v)", got, ok, err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") error = nil")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	if err := s.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	exerciseStore(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := first.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer second.Close()
	got, ok, err := second.Get(context.Background(), "k")
	if err != nil || !ok || got != "v" {
		t.Errorf("Get() after reopen = (%q, %v, %v), want (v, true, nil)", got, ok, err)
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// storeConformance exercises the Store contract shared by every backend.
func storeConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing key
	if _, err := s.Get(ctx, "col", "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	// Round trip
	if err := s.Put(ctx, "col", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := s.Get(ctx, "col", "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "v1" {
		t.Errorf("Expected v1, got %s", v)
	}

	// Overwrite
	if err := s.Put(ctx, "col", "k1", []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, _ = s.Get(ctx, "col", "k1")
	if string(v) != "v2" {
		t.Errorf("Expected v2 after overwrite, got %s", v)
	}

	// Collection isolation: same key, different collection.
	if err := s.Put(ctx, "other", "k1", []byte("elsewhere")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, _ = s.Get(ctx, "col", "k1")
	if string(v) != "v2" {
		t.Errorf("Write to another collection leaked: got %s", v)
	}

	// GetAll / Keys
	if err := s.Put(ctx, "col", "k2", []byte("v3")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	all, err := s.GetAll(ctx, "col")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || string(all["k1"]) != "v2" || string(all["k2"]) != "v3" {
		t.Errorf("Unexpected GetAll result: %v", all)
	}
	keys, err := s.Keys(ctx, "col")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}

	// Delete is idempotent
	if err := s.Delete(ctx, "col", "k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "col", "k1"); err != nil {
		t.Errorf("Second delete must not fail: %v", err)
	}
	if _, err := s.Get(ctx, "col", "k1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}

	// Clear empties one collection, leaves the rest.
	if err := s.Clear(ctx, "col"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	all, _ = s.GetAll(ctx, "col")
	if len(all) != 0 {
		t.Errorf("Expected empty collection after Clear, got %v", all)
	}
	if _, err := s.Get(ctx, "other", "k1"); err != nil {
		t.Errorf("Clear leaked into another collection: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	storeConformance(t, s)
	t.Log("✓ MemoryStore satisfies the Store contract")
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Close()

	if err := s.Put(ctx, "col", "k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := s.Get(ctx, "col", "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	t.Log("✓ A closed store rejects further operations")
}

func TestMemoryStoreCopiesBytes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	buf := []byte("original")
	if err := s.Put(ctx, "col", "k", buf); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	buf[0] = 'X'

	v, err := s.Get(ctx, "col", "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "original" {
		t.Errorf("Caller mutation leaked into the store: %s", v)
	}

	v[0] = 'Y'
	v2, _ := s.Get(ctx, "col", "k")
	if string(v2) != "original" {
		t.Errorf("Returned slice aliases store memory: %s", v2)
	}

	t.Log("✓ Values are copied on the way in and out")
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer s.Close()

	storeConformance(t, s)
	t.Log("✓ BoltStore satisfies the Store contract")
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	if err := s1.Put(ctx, "col", "k", []byte("survives")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	v, err := s2.Get(ctx, "col", "k")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(v) != "survives" {
		t.Errorf("Expected persisted value, got %s", v)
	}

	t.Log("✓ Data survives closing and reopening the database")
}

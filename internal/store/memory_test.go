package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateThenUpdate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	rev1, err := st.Put(ctx, "current/asda", []byte("one"), "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	obj, err := st.Get(ctx, "current/asda")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(obj.Data) != "one" || obj.Revision != rev1 {
		t.Errorf("unexpected object: %+v", obj)
	}

	rev2, err := st.Put(ctx, "current/asda", []byte("two"), rev1)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rev2 == rev1 {
		t.Error("revision must change on every write")
	}
}

func TestMemoryStoreCreateConflictsWhenExists(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if _, err := st.Put(ctx, "k", []byte("one"), ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := st.Put(ctx, "k", []byte("two"), ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate create, got %v", err)
	}
}

func TestMemoryStoreStaleRevisionConflicts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	rev1, _ := st.Put(ctx, "k", []byte("one"), "")
	if _, err := st.Put(ctx, "k", []byte("two"), rev1); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// A writer holding the old token must not win.
	if _, err := st.Put(ctx, "k", []byte("three"), rev1); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on stale token, got %v", err)
	}

	obj, _ := st.Get(ctx, "k")
	if string(obj.Data) != "two" {
		t.Errorf("stale write must not change data, got %q", obj.Data)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	st := NewMemoryStore()
	if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiveKeyLayout(t *testing.T) {
	ts := time.Date(2026, 8, 30, 14, 5, 9, 123456789, time.UTC)
	key := ArchiveKey("asda", ts)
	want := "archive/asda/2026/08/30/140509.123456789"
	if key != want {
		t.Errorf("expected %q, got %q", want, key)
	}
}

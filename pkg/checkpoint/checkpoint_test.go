package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestSaveLoadDelete(t *testing.T) {
	store := newTestStore(t)
	taskID := uuid.New()
	ctx := context.Background()

	if err := store.Save(ctx, taskID, []byte(`{"stage":"approval"}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	blob, exists, err := store.Load(ctx, taskID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !exists {
		t.Fatal("expected checkpoint to exist")
	}
	if string(blob) != `{"stage":"approval"}` {
		t.Errorf("blob = %s", blob)
	}

	if err := store.Delete(ctx, taskID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, exists, err = store.Load(ctx, taskID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if exists {
		t.Error("expected checkpoint to be gone after Delete")
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	taskID := uuid.New()
	ctx := context.Background()

	if err := store.Save(ctx, taskID, []byte("first")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, taskID, []byte("second")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	blob, _, err := store.Load(ctx, taskID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(blob) != "second" {
		t.Errorf("blob = %s, want 'second' (overwritten)", blob)
	}
}

func TestExists(t *testing.T) {
	store := newTestStore(t)
	taskID := uuid.New()
	ctx := context.Background()

	exists, err := store.Exists(ctx, taskID)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("expected no checkpoint before Save")
	}

	_ = store.Save(ctx, taskID, []byte("x"))
	exists, err = store.Exists(ctx, taskID)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("expected checkpoint to exist after Save")
	}
}

package taskqueue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteInsertFindUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := &Record{TaskID: "t1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Find(ctx, "t1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %s", got.Status)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	rec.Status = StatusCompleted
	rec.Result = map[string]any{"chunks": float64(12)}
	rec.UpdatedAt = now.Add(time.Minute)
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err = store.Find(ctx, "t1")
	if err != nil {
		t.Fatalf("Find after update: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s", got.Status)
	}
	result, ok := got.Result.(map[string]any)
	if !ok || result["chunks"] != float64(12) {
		t.Errorf("Result = %#v", got.Result)
	}
}

func TestSQLiteNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find err = %v, want ErrNotFound", err)
	}
	if err := store.Update(context.Background(), &Record{TaskID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDuplicateInsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	rec := &Record{TaskID: "dup", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, rec); err == nil {
		t.Error("expected error on duplicate insert")
	}
}

func TestSQLiteDeleteTerminalBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []Record{
		{TaskID: "old-done", Status: StatusCompleted, CreatedAt: now.AddDate(0, 0, -10), UpdatedAt: now.AddDate(0, 0, -10)},
		{TaskID: "old-cancelled", Status: StatusCancelled, CreatedAt: now.AddDate(0, 0, -9), UpdatedAt: now.AddDate(0, 0, -9)},
		{TaskID: "recent-done", Status: StatusCompleted, CreatedAt: now, UpdatedAt: now},
		{TaskID: "old-pending", Status: StatusPending, CreatedAt: now.AddDate(0, 0, -10), UpdatedAt: now.AddDate(0, 0, -10)},
	}
	for i := range seed {
		if err := store.Insert(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.DeleteTerminalBefore(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if _, err := store.Find(ctx, "recent-done"); err != nil {
		t.Error("recent terminal record should survive")
	}
	if _, err := store.Find(ctx, "old-pending"); err != nil {
		t.Error("pending record should survive")
	}
}

func TestQueueOverSQLiteStore(t *testing.T) {
	store := openTestStore(t)
	q := New(store)
	defer q.Close()

	if err := q.Add(context.Background(), "persist", func(ctx context.Context) (any, error) {
		return "done", nil
	}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rec := waitForStatus(t, q, "persist", StatusCompleted)
	if rec.Result != "done" {
		t.Errorf("Result = %v", rec.Result)
	}
}

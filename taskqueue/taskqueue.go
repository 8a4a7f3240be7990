// Package taskqueue runs ingestion pipelines as cancellable background
// tasks with persisted status records.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a task id.
var ErrNotFound = errors.New("taskqueue: task not found")

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Record is the persisted status envelope for one task.
type Record struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Work is one unit of background work. It must honor ctx cancellation at
// its suspension points.
type Work func(ctx context.Context) (any, error)

// Callback receives the result of a successfully completed task.
type Callback func(result any)

// Store persists task records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	// DeleteTerminalBefore removes terminal records updated before cutoff
	// and reports how many were deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Queue schedules and tracks background tasks. Each task's record reaches
// exactly one terminal state; the in-memory execution handle is discarded
// on every outcome.
type Queue struct {
	store Store
	sem   chan struct{}

	mu        sync.Mutex
	handles   map[string]*handle
	callbacks map[string]Callback
	wg        sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithConcurrency bounds how many tasks run at once. The default is 1,
// which serializes ingestion pipelines against each other.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n < 1 {
			n = 1
		}
		q.sem = make(chan struct{}, n)
	}
}

// New creates a queue over the given store.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		sem:       make(chan struct{}, 1),
		handles:   make(map[string]*handle),
		callbacks: make(map[string]Callback),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add persists a pending record for id and schedules work. cb, if non-nil,
// runs with the result after a natural completion. Fails if a record for id
// already exists.
func (q *Queue) Add(ctx context.Context, id string, work Work, cb Callback) error {
	now := time.Now().UTC()
	rec := &Record{TaskID: id, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := q.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("persisting task %s: %w", id, err)
	}

	// Task lifetime is independent of the caller's request context.
	taskCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}

	q.mu.Lock()
	q.handles[id] = h
	if cb != nil {
		q.callbacks[id] = cb
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(taskCtx, id, work, h)

	slog.Info("taskqueue: task scheduled", "task_id", id)
	return nil
}

// run executes one task and finalizes its record exactly once. The handle
// and callback are discarded regardless of outcome.
func (q *Queue) run(ctx context.Context, id string, work Work, h *handle) {
	defer func() {
		q.mu.Lock()
		delete(q.handles, id)
		delete(q.callbacks, id)
		q.mu.Unlock()
		close(h.done)
		q.wg.Done()
	}()

	// Wait for a slot; cancellation while still pending is honored here.
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		q.finalize(id, StatusCancelled, nil, "")
		return
	}
	defer func() { <-q.sem }()

	if err := q.transition(id, StatusRunning); err != nil {
		slog.Warn("taskqueue: failed to mark task running", "task_id", id, "error", err)
	}

	result, err := work(ctx)
	switch {
	case err == nil:
		q.finalize(id, StatusCompleted, result, "")
	case errors.Is(err, context.Canceled):
		q.finalize(id, StatusCancelled, nil, "")
	default:
		q.finalize(id, StatusError, nil, err.Error())
	}

	if err == nil {
		q.mu.Lock()
		cb := q.callbacks[id]
		q.mu.Unlock()
		if cb != nil {
			cb(result)
		}
	}
}

func (q *Queue) transition(id string, status Status) error {
	ctx := context.Background()
	rec, err := q.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("task %s already terminal (%s)", id, rec.Status)
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return q.store.Update(ctx, rec)
}

func (q *Queue) finalize(id string, status Status, result any, errMsg string) {
	ctx := context.Background()
	rec, err := q.store.Find(ctx, id)
	if err != nil {
		slog.Warn("taskqueue: finalize lookup failed", "task_id", id, "error", err)
		return
	}
	if rec.Status.Terminal() {
		return
	}
	rec.Status = status
	rec.Result = result
	rec.Error = errMsg
	rec.UpdatedAt = time.Now().UTC()
	if err := q.store.Update(ctx, rec); err != nil {
		slog.Warn("taskqueue: finalize update failed", "task_id", id, "error", err)
		return
	}
	slog.Info("taskqueue: task finished", "task_id", id, "status", status)
}

// Status returns the record for id, or ErrNotFound.
func (q *Queue) Status(ctx context.Context, id string) (*Record, error) {
	return q.store.Find(ctx, id)
}

// Cancel signals the running task and waits for its cooperative
// termination. An id with no active handle is a warning no-op, not an
// error.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	h, ok := q.handles[id]
	q.mu.Unlock()
	if !ok {
		slog.Warn("taskqueue: cancel for task with no active handle", "task_id", id)
		return nil
	}

	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// CleanupOld deletes terminal records whose last update predates the
// retention window. Non-terminal and recent records are retained.
func (q *Queue) CleanupOld(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := q.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up tasks: %w", err)
	}
	if n > 0 {
		slog.Info("taskqueue: old tasks removed", "deleted", n, "retention_days", retentionDays)
	}
	return n, nil
}

// Close cancels all in-flight tasks and waits for them to finalize.
func (q *Queue) Close() {
	q.mu.Lock()
	for _, h := range q.handles {
		h.cancel()
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Package tasks runs background work with bounded workers. Every
// submitted task yields a handle the caller can wait on: nothing runs
// fire-and-forget.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Func is the unit of work a task executes. It must honor ctx and may
// report progress in percent.
type Func func(ctx context.Context, progress func(int)) error

// Handle tracks one submitted task. The runner closes done exactly
// once when the task reaches a terminal state.
type Handle struct {
	id   string
	name string
	fn   Func

	mu    sync.Mutex
	state Snapshot
	err   error
	done  chan struct{}
}

func newHandle(name string, fn Func) *Handle {
	id := uuid.New().String()
	return &Handle{
		id:   id,
		name: name,
		fn:   fn,
		state: Snapshot{
			ID:        id,
			Name:      name,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
}

// ID returns the task's unique id.
func (h *Handle) ID() string { return h.id }

// Done is closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx expires, returning the
// task's error in the first case and ctx's in the second.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's terminal error, nil while still running.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Snapshot returns a copy of the task's current state.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) markStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now().UTC()
	h.state.Status = StatusRunning
	h.state.StartedAt = &now
}

func (h *Handle) setProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	h.mu.Lock()
	h.state.Progress = pct
	h.mu.Unlock()
}

func (h *Handle) finish(err error, cancelled bool) {
	h.mu.Lock()
	now := time.Now().UTC()
	h.state.CompletedAt = &now
	switch {
	case cancelled:
		h.state.Status = StatusCancelled
	case err != nil:
		h.state.Status = StatusFailed
	default:
		h.state.Status = StatusCompleted
		h.state.Progress = 100
	}
	if err != nil {
		h.state.Error = err.Error()
		h.err = err
	}
	h.mu.Unlock()
	close(h.done)
}

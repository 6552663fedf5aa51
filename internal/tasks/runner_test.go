package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRunner(t *testing.T, config Config) *Runner {
	t.Helper()
	r := NewRunner(config, nil)
	r.Start()
	t.Cleanup(func() {
		_ = r.Stop(2 * time.Second)
	})
	return r
}

func fastConfig() Config {
	c := DefaultConfig()
	c.RetryBase = time.Millisecond
	return c
}

func TestSubmitAndWait(t *testing.T) {
	r := testRunner(t, fastConfig())

	ran := false
	h, err := r.Submit("noop", func(ctx context.Context, progress func(int)) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait returned %v", err)
	}
	if !ran {
		t.Error("task body never ran")
	}
	snap := h.Snapshot()
	if snap.Status != StatusCompleted || snap.Progress != 100 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestFailureSurfacesThroughHandle(t *testing.T) {
	r := testRunner(t, fastConfig())

	h, err := r.Submit("boom", func(ctx context.Context, progress func(int)) error {
		return fmt.Errorf("bad state")
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.Wait(context.Background()); err == nil {
		t.Fatal("expected task error")
	}
	if snap := h.Snapshot(); snap.Status != StatusFailed || snap.Error == "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestChunkedProcessing(t *testing.T) {
	config := fastConfig()
	config.ChunkSize = 10
	r := testRunner(t, config)

	items := make([]string, 25)
	for i := range items {
		items[i] = fmt.Sprintf("n%d", i)
	}

	var mu sync.Mutex
	var sizes []int
	h, err := r.SubmitChunked("scan", items, func(ctx context.Context, chunk []string) error {
		mu.Lock()
		sizes = append(sizes, len(chunk))
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait returned %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != 3 || sizes[0] != 10 || sizes[2] != 5 {
		t.Errorf("chunk sizes = %v, want [10 10 5]", sizes)
	}
}

func TestChunkRetriedWithBackoff(t *testing.T) {
	config := fastConfig()
	config.ChunkSize = 5
	config.MaxRetries = 2
	r := testRunner(t, config)

	var mu sync.Mutex
	attempts := 0
	h, err := r.SubmitChunked("flaky", []string{"a", "b"}, func(ctx context.Context, chunk []string) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("task should succeed on final retry, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFailedChunkDoesNotBlockOthers(t *testing.T) {
	config := fastConfig()
	config.ChunkSize = 1
	config.MaxRetries = 1
	r := testRunner(t, config)

	var mu sync.Mutex
	processed := map[string]bool{}
	h, err := r.SubmitChunked("partial", []string{"good1", "bad", "good2"}, func(ctx context.Context, chunk []string) error {
		mu.Lock()
		processed[chunk[0]] = true
		mu.Unlock()
		if chunk[0] == "bad" {
			return fmt.Errorf("poison item")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.Wait(context.Background()); err == nil {
		t.Fatal("task with a failed chunk should report the failure")
	}
	mu.Lock()
	defer mu.Unlock()
	if !processed["good1"] || !processed["good2"] {
		t.Errorf("later chunks skipped: %v", processed)
	}
}

func TestCancelRunningTask(t *testing.T) {
	r := testRunner(t, fastConfig())

	started := make(chan struct{})
	h, err := r.Submit("slow", func(ctx context.Context, progress func(int)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started
	if !r.CancelTask(h.ID()) {
		t.Fatal("cancel did not find the running task")
	}
	_ = h.Wait(context.Background())
	if snap := h.Snapshot(); snap.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", snap.Status)
	}
}

func TestQueueFullRejectsSubmission(t *testing.T) {
	config := fastConfig()
	config.Workers = 1
	config.QueueSize = 1
	r := testRunner(t, config)

	block := make(chan struct{})
	defer close(block)
	running := make(chan struct{})
	if _, err := r.Submit("blocker", func(ctx context.Context, progress func(int)) error {
		close(running)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-running

	// One slot in the queue, then rejection instead of blocking.
	if _, err := r.Submit("queued", func(ctx context.Context, progress func(int)) error { return nil }); err != nil {
		t.Fatalf("queued submit failed: %v", err)
	}
	if _, err := r.Submit("overflow", func(ctx context.Context, progress func(int)) error { return nil }); err == nil {
		t.Error("expected queue-full error")
	}
}

func TestStopFinishesQueuedTasks(t *testing.T) {
	config := fastConfig()
	config.Workers = 1
	config.QueueSize = 2
	r := NewRunner(config, nil)
	r.Start()

	running := make(chan struct{})
	blocker, err := r.Submit("blocker", func(ctx context.Context, progress func(int)) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-running

	queued, err := r.Submit("queued", func(ctx context.Context, progress func(int)) error { return nil })
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := r.Stop(2 * time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Both handles must reach a terminal state: the blocker via
	// cancellation, the queued one either drained by the exiting worker
	// or failed at shutdown. No caller may be left waiting forever.
	for _, h := range []*Handle{blocker, queued} {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("task %q still pending after Stop", h.Snapshot().Name)
		}
	}
	if snap := queued.Snapshot(); snap.Status == StatusQueued || snap.Status == StatusRunning {
		t.Errorf("queued task status = %s, want terminal", snap.Status)
	}
}

func TestStatsCounters(t *testing.T) {
	r := testRunner(t, fastConfig())

	h1, _ := r.Submit("ok", func(ctx context.Context, progress func(int)) error { return nil })
	h2, _ := r.Submit("bad", func(ctx context.Context, progress func(int)) error { return fmt.Errorf("x") })
	_ = h1.Wait(context.Background())
	_ = h2.Wait(context.Background())

	stats := r.Stats()
	if stats["completed"].(int64) != 1 || stats["failed"].(int64) != 1 {
		t.Errorf("stats = %v", stats)
	}
}

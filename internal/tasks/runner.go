package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mindgraph/internal/errors"
	"mindgraph/internal/logging"
)

// Config bounds the runner's workers, queue, and chunk retry policy.
type Config struct {
	Workers    int
	QueueSize  int
	ChunkSize  int
	MaxRetries int
	RetryBase  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  64,
		ChunkSize:  500,
		MaxRetries: 3,
		RetryBase:  100 * time.Millisecond,
	}
}

// Runner executes tasks on a bounded worker pool.
type Runner struct {
	config Config
	logger *logging.Logger

	queue  chan *Handle
	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup

	completed int64
	failed    int64
}

func NewRunner(config Config, logger *logging.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 500
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{
		config: config,
		logger: logger,
		queue:  make(chan *Handle, config.QueueSize),
		done:   make(chan struct{}),
		cancel: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	r.logger.Info("starting task runner", map[string]interface{}{
		"workers":   r.config.Workers,
		"queueSize": r.config.QueueSize,
	})
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop cancels running tasks and waits up to timeout for workers to
// drain.
func (r *Runner) Stop(timeout time.Duration) error {
	close(r.done)

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("cancelling running task", map[string]interface{}{"taskId": id})
		cancel()
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		r.failQueued()
		r.logger.Info("task runner stopped", nil)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("task runner shutdown timed out after %v", timeout)
	}
}

// failQueued finishes every handle still in the queue once the workers
// have exited, so no caller is left waiting on a task that will never
// run.
func (r *Runner) failQueued() {
	for {
		select {
		case h := <-r.queue:
			h.finish(errors.Newf(errors.InternalError, "task runner stopped before task %q started", h.name), false)
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
			r.logger.Warn("queued task abandoned at shutdown", map[string]interface{}{
				"taskId": h.ID(),
				"name":   h.name,
			})
		default:
			return
		}
	}
}

// Submit queues fn for execution and returns its handle. Submission
// fails rather than blocks when the queue is full.
func (r *Runner) Submit(name string, fn Func) (*Handle, error) {
	h := newHandle(name, fn)
	select {
	case <-r.done:
		return nil, errors.New(errors.InternalError, "task runner is shutting down")
	default:
	}
	select {
	case r.queue <- h:
		r.logger.Debug("task queued", map[string]interface{}{
			"taskId": h.ID(),
			"name":   name,
		})
		return h, nil
	default:
		return nil, errors.Newf(errors.InternalError, "task queue full (%d pending)", len(r.queue))
	}
}

// ChunkFunc processes one chunk of items.
type ChunkFunc func(ctx context.Context, chunk []string) error

// SubmitChunked splits items into fixed-size chunks and processes
// them sequentially. A failing chunk is retried with exponential
// backoff; after the retry budget it is recorded and the remaining
// chunks still run.
func (r *Runner) SubmitChunked(name string, items []string, fn ChunkFunc) (*Handle, error) {
	chunkSize := r.config.ChunkSize
	return r.Submit(name, func(ctx context.Context, progress func(int)) error {
		total := (len(items) + chunkSize - 1) / chunkSize
		failedChunks := 0
		for i := 0; i < len(items); i += chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := i + chunkSize
			if end > len(items) {
				end = len(items)
			}
			if err := r.runChunk(ctx, fn, items[i:end]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failedChunks++
				r.logger.Warn("chunk failed after retries", map[string]interface{}{
					"task":  name,
					"chunk": i / chunkSize,
					"error": err.Error(),
				})
			}
			progress((i/chunkSize + 1) * 100 / total)
		}
		if failedChunks > 0 {
			return errors.Newf(errors.InternalError, "%d of %d chunks failed", failedChunks, total)
		}
		return nil
	})
}

func (r *Runner) runChunk(ctx context.Context, fn ChunkFunc, chunk []string) error {
	var err error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.config.RetryBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(ctx, chunk); err == nil {
			return nil
		}
	}
	return err
}

// CancelTask cancels one running task by id. Queued tasks cannot be
// cancelled individually; they fail fast once started if the runner
// is stopping.
func (r *Runner) CancelTask(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancel[id]
	if ok {
		cancel()
	}
	return ok
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case h := <-r.queue:
			r.process(h)
		case <-r.done:
			r.logger.Debug("task worker stopping", map[string]interface{}{"workerId": id})
			return
		}
	}
}

func (r *Runner) process(h *Handle) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[h.ID()] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancel, h.ID())
		r.mu.Unlock()
		cancel()
	}()

	h.markStarted()
	start := time.Now()
	err := h.fn(ctx, h.setProgress)
	took := time.Since(start)

	cancelled := err != nil && ctx.Err() == context.Canceled
	h.finish(err, cancelled)

	r.mu.Lock()
	if err != nil && !cancelled {
		r.failed++
	} else if err == nil {
		r.completed++
	}
	r.mu.Unlock()

	fields := map[string]interface{}{
		"taskId": h.ID(),
		"name":   h.name,
		"tookMs": took.Milliseconds(),
	}
	switch {
	case cancelled:
		r.logger.Info("task cancelled", fields)
	case err != nil:
		fields["error"] = err.Error()
		r.logger.Error("task failed", fields)
	default:
		r.logger.Debug("task completed", fields)
	}
}

// Stats reports queue and completion counters.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"queueLength":   len(r.queue),
		"queueCapacity": r.config.QueueSize,
		"runningTasks":  len(r.cancel),
		"completed":     r.completed,
		"failed":        r.failed,
		"workers":       r.config.Workers,
	}
}

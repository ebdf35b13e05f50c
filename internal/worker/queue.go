// Package worker runs background jobs off the caller's goroutine while keeping
// them in submission order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrNotRunning     = errors.New("queue is not running")
	ErrAlreadyRunning = errors.New("queue is already running")
)

// Handler processes one job. Errors are reported, never retried.
type Handler[T any] func(ctx context.Context, job T) error

// QueueConfig holds configuration for a Queue
type QueueConfig struct {
	// Name identifies the queue in logs.
	Name string

	// Size is the buffer length; Enqueue blocks when it is full (default: 64).
	Size int

	// OnError is called from the worker goroutine for every failed job.
	OnError func(error)
}

// DefaultQueueConfig returns sensible defaults
func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{Name: name, Size: 64}
}

type envelope[T any] struct {
	job   T
	flush chan struct{}
}

// Queue is a single-goroutine FIFO. Jobs run one at a time in the order they
// were enqueued, so a later job never overtakes an earlier one.
type Queue[T any] struct {
	handle Handler[T]
	config QueueConfig

	// mu guards running and the jobs channel against close-while-send.
	mu      sync.RWMutex
	running bool
	jobs    chan envelope[T]
	doneCh  chan struct{}

	processed int64
	failed    int64
	statsMu   sync.Mutex
}

func NewQueue[T any](handle Handler[T], config QueueConfig) *Queue[T] {
	if config.Size <= 0 {
		config.Size = 64
	}
	return &Queue[T]{handle: handle, config: config}
}

// Start launches the worker goroutine. ctx is handed to every job.
func (q *Queue[T]) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("%s: %w", q.config.Name, ErrAlreadyRunning)
	}
	q.running = true
	q.jobs = make(chan envelope[T], q.config.Size)
	q.doneCh = make(chan struct{})

	go q.run(context.WithoutCancel(ctx), q.jobs, q.doneCh)

	slog.DebugContext(ctx, "Queue started", "component", "worker", "queue", q.config.Name, "size", q.config.Size)
	return nil
}

func (q *Queue[T]) run(ctx context.Context, jobs <-chan envelope[T], done chan<- struct{}) {
	defer close(done)
	for env := range jobs {
		if env.flush != nil {
			close(env.flush)
			continue
		}
		err := q.handle(ctx, env.job)
		q.statsMu.Lock()
		q.processed++
		if err != nil {
			q.failed++
		}
		q.statsMu.Unlock()
		if err != nil && q.config.OnError != nil {
			q.config.OnError(err)
		}
	}
}

// Enqueue submits a job. It blocks while the buffer is full.
func (q *Queue[T]) Enqueue(job T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.config.Name, ErrNotRunning)
	}
	q.jobs <- envelope[T]{job: job}
	return nil
}

// Flush waits until every job enqueued before the call has been handled.
func (q *Queue[T]) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	marker := make(chan struct{})
	q.mu.RLock()
	if !q.running {
		q.mu.RUnlock()
		return fmt.Errorf("%s: %w", q.config.Name, ErrNotRunning)
	}
	select {
	case q.jobs <- envelope[T]{flush: marker}:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs, drains the buffer and waits for the worker to exit.
func (q *Queue[T]) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.jobs)
	done := q.doneCh
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: stop: %w", q.config.Name, ctx.Err())
	}
}

// IsRunning reports whether the queue accepts jobs.
func (q *Queue[T]) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.running
}

// Stats returns how many jobs ran and how many of those failed.
func (q *Queue[T]) Stats() (processed, failed int64) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return q.processed, q.failed
}

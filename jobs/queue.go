/*
Package jobs provides the in-process background job queue.

PURPOSE:
  Decouples long-running operations (bulk point grants) from the request
  path. Callers Enqueue a job and get an immediate acknowledgment; a
  single worker goroutine executes jobs in order, off any request's
  lifetime.

DESIGN:
  - Enqueue is fire-and-forget: it never blocks, and returns ErrQueueFull
    when the buffer is saturated instead of stalling the caller
  - One worker drains the queue; jobs run one at a time
  - Stop cancels the worker's context and waits for the in-flight job,
    which lets a grant run stop between users
  - A panicking job is recovered and logged, never takes the worker down
*/
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated.
var ErrQueueFull = errors.New("job queue full")

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("job queue stopped")

// Job is a unit of background work.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Run executes the job. The context is cancelled when the queue stops.
	Run(ctx context.Context) error
}

// Queue runs jobs on a single background worker.
type Queue struct {
	jobs   chan Job
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:   make(chan Job, size),
		logger: logger,
	}
}

// Start begins the worker. Calling Start twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(1)
	go q.run(ctx)

	q.logger.Info("job queue started", slog.Int("buffer", cap(q.jobs)))
}

// Stop cancels the worker and waits for the in-flight job to return.
// Queued but unstarted jobs are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.stopped = true
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	q.logger.Info("job queue stopped")
}

// Enqueue submits a job for background execution. Fire-and-forget: the
// caller learns the job was queued, not that it completed.
func (q *Queue) Enqueue(j Job) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.mu.Unlock()

	select {
	case q.jobs <- j:
		q.logger.Info("job enqueued", slog.String("job", j.Name()))
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.execute(ctx, j)
		}
	}
}

func (q *Queue) execute(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked",
				slog.String("job", j.Name()),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		q.logger.Error("job failed",
			slog.String("job", j.Name()),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return
	}

	q.logger.Info("job completed",
		slog.String("job", j.Name()),
		slog.Duration("duration", time.Since(start)))
}

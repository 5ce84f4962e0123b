package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one job. The context is cancelled when the job is cancelled
// or when the queue gives up waiting for it on Stop; context.Cause tells which.
type Handler interface {
	Work(ctx context.Context, jobID string) error
}

type HandlerFunc func(ctx context.Context, jobID string) error

func (f HandlerFunc) Work(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.size = n
		}
	}
}

// Queue runs jobs on a fixed pool of workers. A job id is accepted only once while
// it is waiting or running, so a job never has two executions at the same time.
type Queue struct {
	handler Handler
	workers int
	size    int

	ch     chan string
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.Mutex
	closed bool
	// active holds every queued or running job. Queued jobs map to nil.
	active map[string]context.CancelCauseFunc
	// cancelled holds the cancellation cause of queued jobs not started yet.
	cancelled map[string]error
}

func NewQueue(handler Handler, opts ...QueueOption) *Queue {
	q := &Queue{
		handler:   handler,
		workers:   DefaultWorkers,
		size:      DefaultQueueSize,
		active:    make(map[string]context.CancelCauseFunc),
		cancelled: make(map[string]error),
	}
	for _, o := range opts {
		o(q)
	}

	q.ch = make(chan string, q.size)
	q.ctx, q.cancel = context.WithCancelCause(context.Background())

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run()
	}

	return q
}

// Enqueue schedules jobID. It never blocks: a full queue is reported as ErrQueueFull.
func (q *Queue) Enqueue(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, found := q.active[jobID]; found {
		return ErrAlreadyQueued
	}

	select {
	case q.ch <- jobID:
		q.active[jobID] = nil
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel requests cancellation of jobID with cause. It returns false when the job
// is neither queued nor running. A queued job starts with its context already cancelled.
func (q *Queue) Cancel(jobID string, cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, found := q.active[jobID]
	if !found {
		return false
	}
	if cancel == nil {
		q.cancelled[jobID] = cause
		return true
	}
	cancel(cause)
	return true
}

// Stop refuses new jobs and waits for the queued ones. When ctx is done first the
// remaining jobs are cancelled with ErrShutdown and Stop waits for the workers to return.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel(nil)
		return nil
	case <-ctx.Done():
		q.cancel(ErrShutdown)
		<-done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	for jobID := range q.ch {
		q.process(jobID)
	}
}

func (q *Queue) process(jobID string) {
	ctx, cancel := context.WithCancelCause(q.ctx)

	q.mu.Lock()
	q.active[jobID] = cancel
	cause, cancelled := q.cancelled[jobID]
	delete(q.cancelled, jobID)
	q.mu.Unlock()

	if cancelled {
		cancel(cause)
	}

	defer func() {
		cancel(nil)
		q.mu.Lock()
		delete(q.active, jobID)
		q.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("job_queue").Errorw("job panicked", "job_id", jobID, "panic", r)
		}
	}()

	if err := q.handler.Work(ctx, jobID); err != nil {
		zap.S().Named("job_queue").Errorw("job failed", "job_id", jobID, "error", err)
	}
}

package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/intake"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Handler runs one intake invocation.
type Handler interface {
	Handle(ctx context.Context, ev intake.Event) intake.Outcome
}

// Job is one queued invocation. Done, when set, receives the outcome on the worker goroutine.
type Job struct {
	ID          string
	Event       intake.Event
	SubmittedAt time.Time
	Done        func(intake.Outcome)
}

type Queue struct {
	handler Handler
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds one invocation.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func New(handler Handler, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		handler: handler,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("queue.worker.started", zap.Int("worker_id", workerID))

	for job := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		out := q.handler.Handle(ctx, job.Event)
		cancel()

		q.logger.Info("queue.job.done",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
			zap.Stringer("outcome", out),
			zap.Int64("queued_ms", time.Since(job.SubmittedAt).Milliseconds()))
		if job.Done != nil {
			job.Done(out)
		}
	}

	q.logger.Debug("queue.worker.stopped", zap.Int("worker_id", workerID))
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", zap.String("path", job.Event.Path))
		return ErrClosed
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", zap.String("job_id", job.ID), zap.String("path", job.Event.Path))
		return nil
	default:
	}

	q.logger.Warn("queue.full", zap.String("path", job.Event.Path))
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake of new jobs and waits for queued ones to drain or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.drained")
	}
}

// Run enqueues ev and waits for its outcome.
func (q *Queue) Run(ctx context.Context, ev intake.Event) (intake.Outcome, error) {
	done := make(chan intake.Outcome, 1)
	job := Job{Event: ev, Done: func(out intake.Outcome) { done <- out }}
	if err := q.Enqueue(ctx, job); err != nil {
		return intake.Outcome{}, err
	}
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return intake.Outcome{}, ctx.Err()
	}
}

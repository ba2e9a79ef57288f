// Package jobs runs background work on an in-process worker pool. Jobs live
// only in memory, so handlers must tolerate a job never running; certificate
// PDFs, for example, are rendered again on first download when that happens.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotStarted = errors.New("queue not started")
	ErrQueueFull  = errors.New("queue full")
	ErrDuplicate  = errors.New("job already pending")
)

const maxBackoff = time.Minute

// Job is one unit of work. ID doubles as the de-duplication key: a job whose
// ID is already pending or retrying is rejected with ErrDuplicate.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// ResultFunc observes every attempt. final is true when the job will not run
// again, either because it succeeded or because retries are exhausted.
type ResultFunc func(job Job, err error, final bool)

// QueueConfig tunes the pool. Zero values pick one worker, a buffer of 16
// per worker, no retries and a one second base backoff.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	OnResult   ResultFunc
	Logger     *zap.Logger
}

// Queue dispatches jobs to a fixed set of goroutines. Failed jobs are
// retried with exponential backoff.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job
	busy atomic.Int32

	mu      sync.Mutex
	pending map[string]bool
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	workers sync.WaitGroup
	retries sync.WaitGroup
}

// NewQueue builds a stopped queue.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
		pending: make(map[string]bool),
	}
}

// Start launches the workers. Calling it on a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop refuses new jobs and lets the workers drain what is buffered until
// ctx ends. Scheduled retries are abandoned. It returns ctx's error when the
// drain was cut short.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		for (len(q.jobs) > 0 || q.busy.Load() > 0) && q.ctx.Err() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}
	q.cancel()
	q.workers.Wait()
	q.retries.Wait()
	q.logger.Info("queue stopped", zap.Int("abandoned", len(q.jobs)))
	return err
}

// Enqueue hands job to the pool without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if job.ID != "" && q.pending[job.ID] {
		return fmt.Errorf("%s job %s: %w", q.name, job.ID, ErrDuplicate)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		if job.ID != "" {
			q.pending[job.ID] = true
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Pending reports how many jobs are buffered or waiting to retry.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) work() {
	defer q.workers.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.busy.Add(1)
			q.run(job)
			q.busy.Add(-1)
		}
	}
}

func (q *Queue) run(job Job) {
	err := q.call(job)
	final := err == nil || job.Attempt >= q.cfg.MaxRetries
	if q.cfg.OnResult != nil {
		q.cfg.OnResult(job, err, final)
	}
	if err == nil {
		q.release(job)
		return
	}

	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt+1), zap.Error(err)}
	if final {
		q.logger.Error("job exceeded retries", fields...)
		q.release(job)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("backoff", delay))...)
	job.Attempt++
	q.retryAfter(job, delay)
}

// call runs the handler, turning a panic into an error so one bad job cannot
// take a worker down.
func (q *Queue) call(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return q.handler(q.ctx, job)
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay << attempt
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func (q *Queue) retryAfter(job Job, delay time.Duration) {
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.release(job)
		case <-timer.C:
			select {
			case q.jobs <- job:
			default:
				q.logger.Error("dropping retry, queue full", zap.String("job_id", job.ID))
				q.release(job)
			}
		}
	}()
}

func (q *Queue) release(job Job) {
	if job.ID == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, job.ID)
	q.mu.Unlock()
}

package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work such as an outbound notification.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats counts processed jobs.
type Stats struct {
	Succeeded uint64
	Failed    uint64
	Dropped   uint64
}

// Queue is an in-memory job dispatcher backed by goroutines. Jobs still
// buffered when Stop is called are handled before the workers exit.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool

	succeeded uint64
	failed    uint64
	dropped   uint64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop refuses new jobs, handles what is buffered and waits for workers to exit.
// Pending retries are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cancel()
	q.mu.Unlock()

	q.retries.Wait()
	close(q.jobs)
	q.wg.Wait()
	q.logger.Info("queue stopped",
		zap.Uint64("succeeded", atomic.LoadUint64(&q.succeeded)),
		zap.Uint64("failed", atomic.LoadUint64(&q.failed)),
	)
}

// Enqueue pushes a job onto the queue without blocking. A full buffer drops the job.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if q.stopped {
		return fmt.Errorf("queue %s stopped", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		atomic.AddUint64(&q.dropped, 1)
		return fmt.Errorf("queue %s full", q.name)
	}
}

// Stats returns processed job counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Succeeded: atomic.LoadUint64(&q.succeeded),
		Failed:    atomic.LoadUint64(&q.failed),
		Dropped:   atomic.LoadUint64(&q.dropped),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx := q.ctx
		if ctx.Err() != nil {
			ctx = context.Background()
		}
		if err := q.handler(ctx, job); err != nil {
			q.handleFailure(job, err)
			continue
		}
		atomic.AddUint64(&q.succeeded, 1)
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries || q.ctx.Err() != nil {
		atomic.AddUint64(&q.failed, 1)
		q.logger.Error("job exceeded retries", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		return
	}
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err))

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		atomic.AddUint64(&q.failed, 1)
		return
	}
	q.retries.Add(1)
	q.mu.Unlock()

	go func(j Job) {
		defer q.retries.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			atomic.AddUint64(&q.failed, 1)
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				atomic.AddUint64(&q.failed, 1)
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}

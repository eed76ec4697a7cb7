// Package queue is a bounded job queue with a fixed worker pool and a
// per-job deadline.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cad_ingest/internal/metrics"
)

// ErrStopped is returned once the pool is shutting down.
var ErrStopped = errors.New("queue stopped")

// Job encapsulates one unit of work.
type Job struct {
	ID       string
	Source   string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Stats exposes current queue counters.
type Stats struct {
	Length      int
	Capacity    int
	WorkerCount int
	Processed   uint64
	Failed      uint64
}

// Queue runs jobs on a fixed pool of workers. Each job gets its own
// context derived from the pool context with the configured timeout.
// The jobs channel is never closed; Stop signals shutdown through quit
// so a concurrent enqueue can never hit a closed channel.
type Queue struct {
	jobs        chan Job
	quit        chan struct{}
	workerCount int
	timeout     time.Duration
	log         *zap.Logger
	started     bool
	stopped     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	processed   uint64
	failed      uint64
}

// New creates a Queue with the provided capacity, worker count, and per-job timeout.
func New(capacity, workerCount int, timeout time.Duration, log *zap.Logger) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		quit:        make(chan struct{}),
		workerCount: workerCount,
		timeout:     timeout,
		log:         log,
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue attempts to queue a job without blocking. Returns false if the
// queue is full, not started, or stopped.
func (q *Queue) Enqueue(j Job) bool {
	if !q.accepting() {
		q.log.Warn("enqueue on inactive queue", zap.String("job", j.ID))
		return false
	}
	select {
	case q.jobs <- j:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		q.log.Warn("queue full, dropping job", zap.String("job", j.ID))
		return false
	}
}

// EnqueueWait blocks until the job is accepted, the pool stops, or ctx is
// done. Scans use this so a burst of candidates larger than the queue backs
// up the scan instead of dropping files.
func (q *Queue) EnqueueWait(ctx context.Context, j Job) error {
	if !q.accepting() {
		return ErrStopped
	}
	select {
	case q.jobs <- j:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	case <-q.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) accepting() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started && !q.stopped
}

// Stop stops accepting new jobs and waits for workers to drain until ctx
// is done.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.quit)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workerCount,
		Processed:   atomic.LoadUint64(&q.processed),
		Failed:      atomic.LoadUint64(&q.failed),
	}
}

// Healthy reports whether the pool is running and accepting work.
func (q *Queue) Healthy() bool {
	return q.accepting()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			q.handleJob(ctx, j)
		case <-q.quit:
			q.drainRemaining(ctx)
			return
		}
	}
}

func (q *Queue) drainRemaining(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.handleJob(ctx, j)
		default:
			return
		}
	}
}

func (q *Queue) handleJob(ctx context.Context, j Job) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := q.runJob(jobCtx, j)
	cancel()
	if j.OnFinish != nil {
		j.OnFinish(err)
	}
	atomic.AddUint64(&q.processed, 1)
	if err != nil {
		atomic.AddUint64(&q.failed, 1)
		q.log.Warn("job failed",
			zap.String("source", j.Source),
			zap.String("job", j.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	q.log.Debug("job done",
		zap.String("source", j.Source),
		zap.String("job", j.ID),
		zap.Duration("duration", time.Since(start)))
}

// runJob converts a panic in the work function into an ordinary error so
// OnFinish always fires. Callers park completion signals in OnFinish, so
// skipping it would leak whatever waits on them.
func (q *Queue) runJob(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panic recovered", zap.String("job", j.ID), zap.Any("panic", r))
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
	}()
	return j.Work(ctx)
}

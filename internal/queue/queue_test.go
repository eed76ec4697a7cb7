package queue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cad_ingest/internal/logging"
)

func TestQueueProcessesJob(t *testing.T) {
	q := New(10, 1, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var processed int32
	done := make(chan struct{})
	ok := q.Enqueue(Job{
		ID:     "job1",
		Source: "test",
		Work: func(ctx context.Context) error {
			atomic.AddInt32(&processed, 1)
			close(done)
			return nil
		},
	})
	if !ok {
		t.Fatalf("expected enqueue to succeed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not complete")
	}
	if atomic.LoadInt32(&processed) != 1 {
		t.Fatalf("job not processed")
	}
}

func TestQueueTimeoutAndBounded(t *testing.T) {
	q := New(1, 0, 100*time.Millisecond, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	ok := q.Enqueue(Job{ID: "slow", Source: "test", Work: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if !ok {
		t.Fatalf("expected first enqueue to succeed")
	}

	if ok := q.Enqueue(Job{ID: "drop", Source: "test", Work: func(ctx context.Context) error { return nil }}); ok {
		t.Fatalf("expected enqueue to be rejected when queue is full")
	}
}

func TestJobTimeoutCancelsWork(t *testing.T) {
	q := New(1, 1, 50*time.Millisecond, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	errCh := make(chan error, 1)
	q.Enqueue(Job{
		ID:     "slow",
		Source: "test",
		Work: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		OnFinish: func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("job never finished")
	}
}

func TestEnqueueWaitBlocksUntilSpace(t *testing.T) {
	q := New(1, 1, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(Job{ID: "hold", Source: "test", Work: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	// Wait until the worker has dequeued the hold job so the buffer is empty.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("hold job never started")
	}
	// Fill the buffer behind the running job.
	if ok := q.Enqueue(Job{ID: "buffered", Source: "test", Work: func(ctx context.Context) error { return nil }}); !ok {
		t.Fatalf("expected buffered enqueue to succeed")
	}

	done := make(chan error, 1)
	go func() {
		done <- q.EnqueueWait(ctx, Job{ID: "waiting", Source: "test", Work: func(ctx context.Context) error { return nil }})
	}()

	select {
	case <-done:
		t.Fatalf("EnqueueWait returned before space was free")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EnqueueWait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("EnqueueWait never unblocked")
	}
}

func TestEnqueueWaitHonorsContext(t *testing.T) {
	q := New(1, 0, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(Job{ID: "fill", Source: "test", Work: func(ctx context.Context) error { return nil }})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	err := q.EnqueueWait(waitCtx, Job{ID: "late", Source: "test", Work: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOnFinishRunsWhenJobPanics(t *testing.T) {
	q := New(4, 1, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	errCh := make(chan error, 1)
	q.Enqueue(Job{
		ID:       "boom",
		Source:   "test",
		Work:     func(ctx context.Context) error { panic("boom") },
		OnFinish: func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("expected panic error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("OnFinish never called after panic")
	}

	stats := q.Stats()
	if stats.Failed != 1 {
		t.Fatalf("failed count = %d", stats.Failed)
	}
}

func TestEnqueueAfterStopDoesNotPanic(t *testing.T) {
	q := New(4, 1, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	q.Stop(stopCtx)

	if ok := q.Enqueue(Job{ID: "late", Source: "test", Work: func(ctx context.Context) error { return nil }}); ok {
		t.Fatalf("enqueue after stop must be rejected")
	}
	err := q.EnqueueWait(context.Background(), Job{ID: "later", Source: "test", Work: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if q.Healthy() {
		t.Fatalf("stopped queue must not report healthy")
	}
}

func TestPanicInJobDoesNotKillWorker(t *testing.T) {
	q := New(4, 1, time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(Job{ID: "boom", Source: "test", Work: func(ctx context.Context) error { panic("boom") }})

	done := make(chan struct{})
	q.Enqueue(Job{ID: "after", Source: "test", Work: func(ctx context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not survive the panic")
	}
}

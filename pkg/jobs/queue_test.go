package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stopQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 2)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 2})

	require.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrNotStarted)

	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}

func TestQueueRetriesFailures(t *testing.T) {
	var calls int32
	finished := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(finished)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.Enqueue(Job{ID: "r"}))

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	busy := make(chan struct{}, 2)
	q := NewQueue("full", func(ctx context.Context, _ Job) error {
		busy <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		stopQueue(t, q)
	}()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	<-busy
	require.NoError(t, q.Enqueue(Job{ID: "2"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "3"}), ErrQueueFull)
}

func TestQueueRejectsPendingDuplicate(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("dedupe", func(ctx context.Context, _ Job) error {
		started <- struct{}{}
		<-block
		return nil
	}, QueueConfig{})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "cert-1"}))
	<-started
	assert.ErrorIs(t, q.Enqueue(Job{ID: "cert-1"}), ErrDuplicate)
	assert.Equal(t, 1, q.Pending())

	close(block)
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, q.Enqueue(Job{ID: "cert-1"}))
	stopQueue(t, q)
}

func TestQueueRecoversPanics(t *testing.T) {
	var (
		mu      sync.Mutex
		results []error
	)
	done := make(chan struct{})
	q := NewQueue("panicky", func(_ context.Context, job Job) error {
		if job.ID == "bad" {
			panic("boom")
		}
		close(done)
		return nil
	}, QueueConfig{OnResult: func(_ Job, err error, _ bool) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.Enqueue(Job{ID: "bad"}))
	require.NoError(t, q.Enqueue(Job{ID: "good"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.ErrorContains(t, results[0], "boom")
	assert.NoError(t, results[1])
}

func TestQueueReportsFinalAttempt(t *testing.T) {
	type outcome struct {
		attempt int
		final   bool
	}
	seen := make(chan outcome, 4)
	q := NewQueue("final", func(context.Context, Job) error {
		return errors.New("always")
	}, QueueConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond, OnResult: func(job Job, err error, final bool) {
		seen <- outcome{attempt: job.Attempt, final: final}
	}})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.Enqueue(Job{ID: "x", Type: "render"}))

	var got []outcome
	for len(got) < 2 {
		select {
		case o := <-seen:
			got = append(got, o)
		case <-time.After(2 * time.Second):
			t.Fatalf("saw %d results, want 2", len(got))
		}
	}
	assert.Equal(t, []outcome{{attempt: 0, final: false}, {attempt: 1, final: true}}, got)
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var processed int32
	release := make(chan struct{})
	q := NewQueue("drain", func(context.Context, Job) error {
		<-release
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{BufferSize: 4})
	q.Start(context.Background())

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	close(release)

	stopQueue(t, q)
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrNotStarted)
}

func TestQueueStopHonoursDeadline(t *testing.T) {
	q := NewQueue("stuck", func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Stop(ctx), context.DeadlineExceeded)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	q := NewQueue("backoff", nil, QueueConfig{RetryDelay: time.Second})
	assert.Equal(t, time.Second, q.backoff(0))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, maxBackoff, q.backoff(10))
	assert.Equal(t, maxBackoff, q.backoff(80))
}

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestProcessor(maxRetries int, opts ...ProcessorOption) *Processor {
	opts = append([]ProcessorOption{WithJobSleeper(noSleep)}, opts...)
	return NewProcessor(logging.Get(), Policy{MaxRetries: maxRetries, Name: "test_job"}, opts...)
}

func TestProcessor_RunsJobs(t *testing.T) {
	p := newTestProcessor(0)
	seen := make(chan [2]string, 2)
	p.Handle("sync_post", func(ctx context.Context, job Job) error {
		seen <- [2]string{job.Key, contextkeys.RequestID(ctx)}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "refund-policy", RequestID: "hook-1"}))

	select {
	case got := <-seen:
		assert.Equal(t, "refund-policy", got[0])
		assert.Equal(t, "hook-1", got[1])
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestProcessor_CoalescesPendingJobs(t *testing.T) {
	p := newTestProcessor(0)
	var calls atomic.Int32
	p.Handle("sync_post", func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "a"}))
	require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "a"}))
	require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "b"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessor_DeadLettersExhaustedJobs(t *testing.T) {
	p := newTestProcessor(2)
	var calls atomic.Int32
	p.Handle("sync_post", func(ctx context.Context, job Job) error {
		calls.Add(1)
		return errors.New("ghost unavailable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "broken"}))

	require.Eventually(t, func() bool { return p.DeadLetters().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())

	dl := p.DeadLetters().List()[0]
	assert.Equal(t, "broken", dl.Job.Key)
	assert.Equal(t, 3, dl.Job.Attempts)
	assert.Equal(t, "ghost unavailable", dl.LastErr)
}

func TestProcessor_Enqueue(t *testing.T) {
	t.Run("UnknownType", func(t *testing.T) {
		p := newTestProcessor(0)
		assert.Error(t, p.Enqueue(Job{Type: "send_email", Key: "x"}))
	})

	t.Run("QueueFull", func(t *testing.T) {
		p := newTestProcessor(0, WithQueueSize(1))
		p.Handle("sync_post", func(context.Context, Job) error { return nil })

		require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "a"}))
		assert.ErrorIs(t, p.Enqueue(Job{Type: "sync_post", Key: "b"}), ErrQueueFull)
	})

	t.Run("Stopped", func(t *testing.T) {
		p := newTestProcessor(0)
		p.Handle("sync_post", func(context.Context, Job) error { return nil })

		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		cancel()
		p.Wait()

		assert.ErrorIs(t, p.Enqueue(Job{Type: "sync_post", Key: "a"}), ErrProcessorStopped)
	})
}

func TestDeadLetterQueue(t *testing.T) {
	t.Run("EvictsOldest", func(t *testing.T) {
		dlq := NewDeadLetterQueue(logging.Get(), 2)
		for _, key := range []string{"a", "b", "c"} {
			dlq.Move(Job{Type: "sync_post", Key: key}, errors.New("boom"))
		}

		items := dlq.List()
		require.Len(t, items, 2)
		assert.Equal(t, "b", items[0].Job.Key)
		assert.Equal(t, "c", items[1].Job.Key)
	})

	t.Run("Stats", func(t *testing.T) {
		dlq := NewDeadLetterQueue(logging.Get(), 10)
		dlq.Move(Job{Type: "sync_post", Key: "a"}, errors.New("boom"))
		dlq.Move(Job{Type: "sync_post", Key: "b"}, errors.New("boom"))
		dlq.Move(Job{Type: "remove_post", Key: "c"}, errors.New("boom"))

		assert.Equal(t, map[string]int{"sync_post": 2, "remove_post": 1}, dlq.Stats())
	})

	t.Run("Requeue", func(t *testing.T) {
		p := newTestProcessor(0)
		p.Handle("sync_post", func(context.Context, Job) error { return nil })

		dlq := p.DeadLetters()
		dlq.Move(Job{Type: "sync_post", Key: "a", Attempts: 3}, errors.New("boom"))
		dlq.Move(Job{Type: "sync_post", Key: "b", Attempts: 3}, errors.New("boom"))

		assert.Equal(t, 2, dlq.Requeue(p, 0))
		assert.Zero(t, dlq.Len())
	})

	t.Run("RequeueLimit", func(t *testing.T) {
		p := newTestProcessor(0)
		p.Handle("sync_post", func(context.Context, Job) error { return nil })

		dlq := p.DeadLetters()
		dlq.Move(Job{Type: "sync_post", Key: "fresh"}, errors.New("boom"))
		dlq.Move(Job{Type: "sync_post", Key: "spent", Requeues: 2}, errors.New("boom"))

		assert.Equal(t, 1, dlq.Requeue(p, 2))
		items := dlq.List()
		require.Len(t, items, 1)
		assert.Equal(t, "spent", items[0].Job.Key)
	})
}

func TestProcessor_RequeuesDeadLetters(t *testing.T) {
	t.Run("RecoversAfterTransientFailure", func(t *testing.T) {
		p := newTestProcessor(0, WithRequeue(10*time.Millisecond, 3))
		var calls atomic.Int32
		p.Handle("sync_post", func(ctx context.Context, job Job) error {
			if calls.Add(1) < 3 {
				return errors.New("ghost unavailable")
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "refund"}))

		require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
		assert.Eventually(t, func() bool { return p.DeadLetters().Len() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("StopsAtLimit", func(t *testing.T) {
		p := newTestProcessor(0, WithRequeue(5*time.Millisecond, 1))
		var calls atomic.Int32
		p.Handle("sync_post", func(ctx context.Context, job Job) error {
			calls.Add(1)
			return errors.New("ghost unavailable")
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		require.NoError(t, p.Enqueue(Job{Type: "sync_post", Key: "broken"}))

		require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(2), calls.Load())

		items := p.DeadLetters().List()
		require.Len(t, items, 1)
		assert.Equal(t, 1, items[0].Job.Requeues)
	})
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	q := NewQueue(func(_ context.Context, n int) error {
		time.Sleep(time.Duration(10-n%10) * 100 * time.Microsecond)
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		return nil
	}, QueueConfig{Name: "test", Size: 4})

	require.NoError(t, q.Start(context.Background()))
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Stop(context.Background()))

	require.Len(t, seen, 50)
	for i, n := range seen {
		assert.Equal(t, i, n)
	}
	processed, failed := q.Stats()
	assert.Equal(t, int64(50), processed)
	assert.Equal(t, int64(0), failed)
}

func TestQueueReportsErrorsWithoutRetry(t *testing.T) {
	var calls int
	var reported []error
	boom := errors.New("boom")
	q := NewQueue(func(_ context.Context, n int) error {
		calls++
		if n == 1 {
			return boom
		}
		return nil
	}, QueueConfig{Name: "test", OnError: func(err error) { reported = append(reported, err) }})

	require.NoError(t, q.Start(context.Background()))
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Flush(context.Background()))

	assert.Equal(t, 3, calls)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue(func(context.Context, int) error { return nil }, DefaultQueueConfig("test"))
	assert.False(t, q.IsRunning())
	assert.ErrorIs(t, q.Enqueue(1), ErrNotRunning)
	assert.ErrorIs(t, q.Flush(context.Background()), ErrNotRunning)

	require.NoError(t, q.Start(context.Background()))
	assert.ErrorIs(t, q.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, q.IsRunning())

	require.NoError(t, q.Stop(context.Background()))
	assert.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(1), ErrNotRunning)

	require.NoError(t, q.Start(context.Background()), "a stopped queue can be restarted")
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueJobsSurviveCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var gotErr error
	done := make(chan struct{})
	q := NewQueue(func(ctx context.Context, _ int) error {
		gotErr = ctx.Err()
		close(done)
		return nil
	}, DefaultQueueConfig("test"))

	require.NoError(t, q.Start(ctx))
	cancel()
	require.NoError(t, q.Enqueue(1))
	<-done
	assert.NoError(t, gotErr)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueFlushHonoursContextWhenFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	cfg := DefaultQueueConfig("test")
	cfg.Size = 1
	q := NewQueue(func(context.Context, int) error {
		started <- struct{}{}
		<-release
		return nil
	}, cfg)
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.Enqueue(1))
	<-started
	require.NoError(t, q.Enqueue(2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Flush(ctx), context.DeadlineExceeded)

	close(release)
	<-started
	require.NoError(t, q.Stop(context.Background()))
}

package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsResult(t *testing.T) {
	p := NewPool(2, 4)
	defer p.Stop(context.Background())

	v, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Run(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestRun_RecoversPanic(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop(context.Background())

	_, err := Run(context.Background(), p, func(ctx context.Context) (string, error) {
		panic("bad artifact")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad artifact")

	// The worker survives the panic.
	v, err := Run(context.Background(), p, func(ctx context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPool_SubmitReturnsBusyWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the only worker.
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	// Fill the only queue slot.
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {}))
	assert.Equal(t, 1, p.QueueDepth())

	err := p.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(release)
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_SkipsAbandonedTasks(t *testing.T) {
	p := NewPool(1, 2)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	require.NoError(t, p.Submit(ctx, func(ctx context.Context) { ran.Store(true) }))
	cancel()

	close(release)
	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, ran.Load())
}

func TestRun_CallerCancellation(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_StopDrainsQueueAndRejectsNewWork(t *testing.T) {
	p := NewPool(2, 16)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}

	require.NoError(t, p.Stop(context.Background()))
	wg.Wait()
	assert.Equal(t, int32(10), count.Load())

	assert.ErrorIs(t, p.Submit(context.Background(), func(ctx context.Context) {}), ErrClosed)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestInline(t *testing.T) {
	v, err := Run(context.Background(), Inline{}, func(ctx context.Context) (float64, error) { return 0.93, nil })
	require.NoError(t, err)
	assert.Equal(t, 0.93, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, Inline{}, func(ctx context.Context) (float64, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_Capacity(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Stop(context.Background())
	assert.Equal(t, 8, p.Capacity())

	unbuffered := NewPool(1, -4)
	defer unbuffered.Stop(context.Background())
	assert.Equal(t, 0, unbuffered.Capacity())
}

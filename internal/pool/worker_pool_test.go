package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWait_RunsJob(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 2, QueueSize: 4})
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestSubmitWait_PropagatesJobError(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 1, QueueSize: 1})
	defer p.Close()

	want := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error { return want })
	assert.Equal(t, want, err)
}

func TestSubmit_BoundsConcurrency(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 2, QueueSize: 16})
	defer p.Close()

	release := make(chan struct{})
	var peak atomic.Int32
	for i := 0; i < 6; i++ {
		err := p.Submit(context.Background(), func(ctx context.Context) error {
			n := p.activeCount.Load()
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			return nil
		})
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	p.Close()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(6), p.Stats().Completed)
}

func TestSubmit_FullQueueRejected(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 1, QueueSize: 1})
	defer p.Close()

	release := make(chan struct{})
	defer close(release)

	block := func(ctx context.Context) error { <-release; return nil }
	require.NoError(t, p.Submit(context.Background(), block)) // occupies the worker
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), block)) // sits in the queue

	err := p.Submit(context.Background(), block)
	assert.Equal(t, ErrPoolFull, err)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestSubmit_AfterCloseRejected(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{MaxWorkers: 1, QueueSize: 1})
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, ErrPoolClosed, err)
}

func TestRun_RecoversPanics(t *testing.T) {
	var recovered atomic.Value
	p := NewWorkerPool(WorkerPoolConfig{
		MaxWorkers:   1,
		QueueSize:    1,
		PanicHandler: func(v any) { recovered.Store(v) },
	})
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Equal(t, "kaboom", recovered.Load())
	assert.Equal(t, int64(1), p.Stats().Failed)
}

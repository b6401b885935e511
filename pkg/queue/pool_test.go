package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStartAndStop(t *testing.T) {
	q, _ := newTestQueue(t)
	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	pool := NewPool("pod-a", q, cfg, &fakeRunner{}, nil)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.Len(t, pool.workers, 2)

	// Duplicate start does not spawn more workers.
	require.NoError(t, pool.Start(ctx))
	assert.Len(t, pool.workers, 2)

	pool.Stop()
}

func TestPoolProcessesJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	runner := &fakeRunner{}
	pool := NewPool("pod-a", q, testQueueConfig(), runner, nil)
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.NoError(t, q.Enqueue(ctx, Job{Descriptor: descriptorPayload(t, "r1", false)}))

	require.Eventually(t, func() bool {
		inputs, _ := runner.snapshot()
		return len(inputs) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPoolCancelRegistry(t *testing.T) {
	q, _ := newTestQueue(t)
	pool := NewPool("pod-a", q, testQueueConfig(), &fakeRunner{}, nil)

	cancelled := false
	pool.RegisterRun("r1", func() { cancelled = true })

	assert.False(t, pool.CancelRun("unknown"))
	assert.True(t, pool.CancelRun("r1"))
	assert.True(t, cancelled)

	pool.UnregisterRun("r1")
	assert.False(t, pool.CancelRun("r1"))
}

func TestPoolHealth(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	pool := NewPool("pod-a", q, cfg, &fakeRunner{}, nil)

	t.Run("unstarted pool is unhealthy", func(t *testing.T) {
		health := pool.Health(ctx)
		assert.False(t, health.IsHealthy)
		assert.Zero(t, health.TotalWorkers)
	})

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	t.Run("started pool reports workers and queue depth", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, Job{Descriptor: descriptorPayload(t, "queued", false)}))

		health := pool.Health(ctx)
		assert.True(t, health.IsHealthy)
		assert.True(t, health.StoreReachable)
		assert.Equal(t, "pod-a", health.PodID)
		assert.Equal(t, 2, health.TotalWorkers)
		assert.Len(t, health.WorkerStats, 2)
	})

	t.Run("dead store is unhealthy", func(t *testing.T) {
		mr.Close()
		health := pool.Health(ctx)
		assert.False(t, health.IsHealthy)
		assert.False(t, health.StoreReachable)
		assert.NotEmpty(t, health.StoreError)
	})
}

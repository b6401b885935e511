package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "perspective:global-rate-limit"

func newTestLimiter(t *testing.T, minInterval time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(rdb, testKey, minInterval, 5*time.Millisecond, minInterval, time.Minute), mr
}

func TestWaitAdmitsImmediatelyWhenIdle(t *testing.T) {
	l, mr := newTestLimiter(t, time.Second)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.True(t, mr.Exists(testKey))
}

func TestWaitSpacesAdmissions(t *testing.T) {
	l, _ := newTestLimiter(t, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitUsesStoreClock(t *testing.T) {
	l, mr := newTestLimiter(t, time.Second)
	mr.SetTime(time.Unix(1700000000, 0))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	stored, err := mr.Get(testKey)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", stored)

	// The store clock is frozen, so no amount of worker wall time opens the
	// next slot: admissions are timed by the store, not the caller.
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(cancelCtx), context.DeadlineExceeded)
}

func TestWaitHonorsCancellation(t *testing.T) {
	l, _ := newTestLimiter(t, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitFallsBackToLocalPacing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewLimiter(rdb, testKey, 50*time.Millisecond, 5*time.Millisecond, 50*time.Millisecond, time.Minute)

	// A dead store degrades to per-worker pacing instead of failing.
	mr.Close()

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

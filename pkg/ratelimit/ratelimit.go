// Package ratelimit implements the global admission gate for the external
// classifier API: one admission per interval across all workers sharing the
// store, with a degraded per-worker pacing mode when the store is down.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript reads the last-admission timestamp; if at least ARGV[1] ms of
// server time have passed it records now and admits (returns 0), otherwise it
// returns the remaining wait in ms. Time comes from the store's own clock so
// worker clock skew cannot narrow the admission gap. The key carries a short
// TTL so idle periods auto-clean state.
var admitScript = redis.NewScript(`
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local interval = tonumber(ARGV[1])
local last = redis.call("GET", KEYS[1])
if not last or now - tonumber(last) >= interval then
  redis.call("SET", KEYS[1], now, "PX", ARGV[2])
  return 0
end
return interval - (now - tonumber(last))
`)

// Limiter is the shared 1-per-interval admission gate. Each slot clears
// within one interval, so even heavy contention resolves; callers retry
// until admitted or their context ends.
type Limiter struct {
	rdb         *redis.Client
	key         string
	minInterval time.Duration
	poll        time.Duration
	keyTTL      time.Duration

	// Fallback pacing when the shared store is unreachable. Preserves
	// correctness for a single worker and avoids hard-failing the pipeline.
	fallbackDelay time.Duration
	mu            sync.Mutex
	lastLocal     time.Time
}

// NewLimiter creates the global admission gate.
func NewLimiter(rdb *redis.Client, key string, minInterval, poll, fallbackDelay, keyTTL time.Duration) *Limiter {
	return &Limiter{
		rdb:           rdb,
		key:           key,
		minInterval:   minInterval,
		poll:          poll,
		keyTTL:        keyTTL,
		fallbackDelay: fallbackDelay,
	}
}

// Wait blocks until a global slot is admitted or ctx ends. Sleeps are bounded
// by the poll granularity so cancellation is prompt.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		waitMs, err := admitScript.Run(ctx, l.rdb, []string{l.key},
			l.minInterval.Milliseconds(),
			l.keyTTL.Milliseconds(),
		).Int64()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Rate limiter store unreachable, degrading to local pacing", "error", err)
			return l.waitLocal(ctx)
		}
		if waitMs <= 0 {
			return nil
		}
		sleep := time.Duration(waitMs) * time.Millisecond
		if sleep > l.poll {
			sleep = l.poll
		}
		if err := sleepCtx(ctx, sleep); err != nil {
			return err
		}
	}
}

// waitLocal enforces a fixed per-worker delay between admissions.
func (l *Limiter) waitLocal(ctx context.Context) error {
	for {
		l.mu.Lock()
		elapsed := time.Since(l.lastLocal)
		if elapsed >= l.fallbackDelay {
			l.lastLocal = time.Now()
			l.mu.Unlock()
			return nil
		}
		remaining := l.fallbackDelay - elapsed
		l.mu.Unlock()
		if remaining > l.poll {
			remaining = l.poll
		}
		if err := sleepCtx(ctx, remaining); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

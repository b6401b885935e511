// Package lock implements a value-matching distributed mutual-exclusion lock
// on a Redis-compatible store. Only the holder whose opaque value matches the
// stored one can extend or release, so a stale worker cannot accidentally
// release a newer worker's lock.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pipelineLockPrefix namespaces per-report execution locks.
const pipelineLockPrefix = "pipeline_lock:"

// PipelineKey returns the execution lock key for a report.
func PipelineKey(reportID string) string {
	return pipelineLockPrefix + reportID
}

// verifyScript returns 1 iff the key exists and holds the expected value.
var verifyScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return 1
end
return 0
`)

// extendScript resets the TTL only if the current value matches.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only if the current value matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Manager provides acquire/verify/extend/release operations for generic
// value-matching locks. All operations are atomic w.r.t. the backing store.
type Manager struct {
	rdb *redis.Client
}

// NewManager creates a lock manager backed by the given Redis client.
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Acquire attempts a set-if-absent with TTL. Returns false when the lock is
// already held (by anyone). No fairness: retrying is the caller's concern.
func (m *Manager) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return ok, nil
}

// Verify reports whether the key exists and its stored value equals value.
func (m *Manager) Verify(ctx context.Context, key, value string) (bool, error) {
	n, err := verifyScript.Run(ctx, m.rdb, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("verifying lock %s: %w", key, err)
	}
	return n == 1, nil
}

// Extend resets the TTL only if the current value matches; returns false
// otherwise (lock lost or taken over).
func (m *Manager) Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, m.rdb, []string{key}, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extending lock %s: %w", key, err)
	}
	return n == 1, nil
}

// Release deletes the lock only if the current value matches; returns false
// otherwise. Safe to call after expiry.
func (m *Manager) Release(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseScript.Run(ctx, m.rdb, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return n == 1, nil
}

// ForceRelease deletes the lock unconditionally. Cancellation uses this: the
// canceller does not know the holder's value, and deleting the key makes the
// holder's next extend or lock-guarded write fail.
func (m *Manager) ForceRelease(ctx context.Context, key string) error {
	if err := m.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("force-releasing lock %s: %w", key, err)
	}
	return nil
}

// Package store persists durable per-run pipeline state in a
// Redis-compatible store, including the lock-guarded atomic write path and
// the per-stage validation failure counters.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civitas-labs/agora/pkg/models"
)

// Key prefixes for the state store.
const (
	statePrefix             = "pipeline_state:"
	validationFailurePrefix = "pipeline_validation_failure:"
)

// Sentinel errors for state store operations.
var (
	// ErrNotFound indicates no state exists for the report.
	ErrNotFound = errors.New("run state not found")

	// ErrStateCorrupt indicates stored state that cannot be parsed or fails
	// schema validation. Distinguished from ErrNotFound so the runner can
	// quarantine instead of silently re-initializing.
	ErrStateCorrupt = errors.New("run state corrupt")

	// ErrLockLost indicates a lock-guarded write was rejected because the
	// lock key no longer holds the caller's owner value. No state bytes
	// were written.
	ErrLockLost = errors.New("lock lost")
)

// saveWithLockGuardScript writes the state only if the lock key still holds
// the caller's owner value. Verifying the lock separately and then writing
// would be a time-of-check/time-of-use race; this closes it.
var saveWithLockGuardScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

// StateKey returns the state key for a report.
func StateKey(reportID string) string {
	return statePrefix + reportID
}

// validationFailureKey returns the per-stage validation failure counter key.
func validationFailureKey(reportID string, stage models.StageName) string {
	return fmt.Sprintf("%s%s:%s", validationFailurePrefix, reportID, stage)
}

// StateStore provides CRUD plus the atomic lock-guarded write for run state.
type StateStore struct {
	rdb       *redis.Client
	stateTTL  time.Duration
	failedTTL time.Duration
}

// NewStateStore creates a state store. stateTTL applies to pending/running/
// completed states, failedTTL to failed states (shorter, to prevent memory
// buildup during outages).
func NewStateStore(rdb *redis.Client, stateTTL, failedTTL time.Duration) *StateStore {
	return &StateStore{rdb: rdb, stateTTL: stateTTL, failedTTL: failedTTL}
}

// Get reads and validates the state for a report. Returns ErrNotFound when
// absent and ErrStateCorrupt when the payload cannot be parsed or fails
// schema validation.
func (s *StateStore) Get(ctx context.Context, reportID string) (*models.RunState, error) {
	data, err := s.rdb.Get(ctx, StateKey(reportID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading state for %s: %w", reportID, err)
	}
	var state models.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	return &state, nil
}

// Save writes the state with a timestamp refresh. TTL is selected from the
// state's status unless overridden.
func (s *StateStore) Save(ctx context.Context, state *models.RunState, ttlOverride ...time.Duration) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state for %s: %w", state.ReportID, err)
	}
	ttl := s.ttlFor(state)
	if len(ttlOverride) > 0 {
		ttl = ttlOverride[0]
	}
	if err := s.rdb.Set(ctx, StateKey(state.ReportID), data, ttl).Err(); err != nil {
		return fmt.Errorf("writing state for %s: %w", state.ReportID, err)
	}
	return nil
}

// Delete removes the state. Idempotent.
func (s *StateStore) Delete(ctx context.Context, reportID string) error {
	if err := s.rdb.Del(ctx, StateKey(reportID)).Err(); err != nil {
		return fmt.Errorf("deleting state for %s: %w", reportID, err)
	}
	return nil
}

// Update applies a read-modify-write mutation. Returns ErrNotFound when no
// state exists. Not atomic by itself: callers must already hold the run lock.
func (s *StateStore) Update(ctx context.Context, reportID string, mutate func(*models.RunState)) (*models.RunState, error) {
	state, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	mutate(state)
	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveWithLockGuard atomically writes the state only if lockKey still holds
// lockValue. Returns ErrLockLost (and writes nothing) otherwise.
func (s *StateStore) SaveWithLockGuard(ctx context.Context, state *models.RunState, lockKey, lockValue string) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state for %s: %w", state.ReportID, err)
	}
	n, err := saveWithLockGuardScript.Run(ctx, s.rdb,
		[]string{lockKey, StateKey(state.ReportID)},
		lockValue, data, s.ttlFor(state).Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("lock-guarded write for %s: %w", state.ReportID, err)
	}
	if n != 1 {
		return ErrLockLost
	}
	return nil
}

// IncrValidationFailure increments the per-stage validation failure counter
// and returns the new count. The counter expires with the state retention.
func (s *StateStore) IncrValidationFailure(ctx context.Context, reportID string, stage models.StageName) (int, error) {
	key := validationFailureKey(reportID, stage)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing validation failures for %s/%s: %w", reportID, stage, err)
	}
	if err := s.rdb.Expire(ctx, key, s.stateTTL).Err(); err != nil {
		slog.Warn("Failed to set TTL on validation failure counter",
			"report_id", reportID, "stage", stage, "error", err)
	}
	return int(n), nil
}

// ResetValidationFailure deletes the per-stage counter (counter-at-zero is
// represented by key absence).
func (s *StateStore) ResetValidationFailure(ctx context.Context, reportID string, stage models.StageName) error {
	if err := s.rdb.Del(ctx, validationFailureKey(reportID, stage)).Err(); err != nil {
		return fmt.Errorf("resetting validation failures for %s/%s: %w", reportID, stage, err)
	}
	return nil
}

// ttlFor selects the retention for a state by its status.
func (s *StateStore) ttlFor(state *models.RunState) time.Duration {
	if state.Status == models.RunStatusFailed {
		return s.failedTTL
	}
	return s.stateTTL
}

package pipeline

import (
	"errors"
	"fmt"

	"github.com/civitas-labs/agora/pkg/models"
)

// Sentinel errors for runner outcomes. Clients discriminate on these.
var (
	// ErrAlreadyRunning indicates the per-report lock is held by another
	// owner. Surfaced without side effects.
	ErrAlreadyRunning = errors.New("report pipeline already running")

	// ErrCannotResume indicates resume was requested on a terminal or
	// never-started state.
	ErrCannotResume = errors.New("cannot resume run")

	// ErrLockLost indicates the heartbeat failed or a lock-guarded write
	// was rejected. The current stage is abandoned and state is not
	// written further.
	ErrLockLost = errors.New("execution lock lost")

	// ErrCorruptedState indicates stored state that cannot be trusted:
	// either an unparseable payload or a stage whose cached output failed
	// revalidation too many times.
	ErrCorruptedState = errors.New("run state corrupted")

	// ErrCancelled indicates the run was cancelled (externally or by the
	// run deadline).
	ErrCancelled = errors.New("run cancelled")
)

// Error names recorded in the durable run state. Downstream publication
// matches on these strings.
const (
	errNameStageFailure = "StageFailure"
	errNameStateCorrupt = "StateCorrupt"
	errNameCancelled    = "Cancelled"
)

// StageFailureError wraps an executor failure with its stage. Fatal for the
// run; the runner does not retry.
type StageFailureError struct {
	Stage models.StageName
	Err   error
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailureError) Unwrap() error {
	return e.Err
}

// Package pipeline implements the run lifecycle: lock admission, state
// initialization and resume, the stage loop with cached-result revalidation,
// lock heartbeating, and cancellation.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/lock"
	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/stages"
	"github.com/civitas-labs/agora/pkg/store"
)

// releaseTimeout bounds the best-effort lock release on a failed run.
const releaseTimeout = 5 * time.Second

// RunInput is one admission request.
type RunInput struct {
	Descriptor *config.JobDescriptor

	// Resume requests continuation of an interrupted run: completed stage
	// results are revalidated and reused instead of re-executed.
	Resume bool
}

// Outputs are the stage products of a completed run.
type Outputs struct {
	Taxonomy  models.Taxonomy       `json:"taxonomy"`
	Claims    models.ClaimsTree     `json:"claims"`
	Tree      models.SortedTree     `json:"tree"`
	Summaries []models.TopicSummary `json:"summaries"`
	Cruxes    []models.SubtopicCrux `json:"cruxes,omitempty"`
}

// RunResult is returned on success. The execution lock is still held (with
// the post-completion extension) so the caller can publish the report under
// mutual exclusion; call ReleaseLock when done.
type RunResult struct {
	Outputs   Outputs
	State     *models.RunState
	LockKey   string
	LockOwner string
}

// Runner executes pipeline runs end to end.
type Runner struct {
	store       *store.StateStore
	locks       *lock.Manager
	execFactory ExecutorFactory
	lockCfg     config.LockConfig
	pipeCfg     config.PipelineConfig
	observer    Observer
}

// NewRunner creates a runner. observer may be nil.
func NewRunner(st *store.StateStore, locks *lock.Manager, execFactory ExecutorFactory, lockCfg config.LockConfig, pipeCfg config.PipelineConfig, observer Observer) *Runner {
	return &Runner{
		store:       st,
		locks:       locks,
		execFactory: execFactory,
		lockCfg:     lockCfg,
		pipeCfg:     pipeCfg,
		observer:    observer,
	}
}

// Run executes one pipeline run. Admission is lock-based: if another owner
// holds the report's lock, ErrAlreadyRunning is returned without side effects.
// On success the lock is retained for publication; every error path releases
// it.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	desc := in.Descriptor
	if desc == nil {
		return nil, fmt.Errorf("nil job descriptor")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	reportID := desc.ReportID()
	lockKey := lock.PipelineKey(reportID)
	owner := uuid.NewString()

	acquired, err := r.locks.Acquire(ctx, lockKey, owner, r.lockCfg.TTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}

	logger := slog.With("report_id", reportID, "lock_owner", owner)
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		relCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, relErr := r.locks.Release(relCtx, lockKey, owner); relErr != nil {
			logger.Warn("Failed to release execution lock", "error", relErr)
		}
	}()

	state, err := r.prepareState(ctx, desc, in.Resume, logger)
	if err != nil {
		return nil, err
	}
	if err := r.persist(ctx, state, lockKey, owner); err != nil {
		return nil, err
	}

	// The run context carries the deadline; the heartbeat cancels it with
	// ErrLockLost when the lock cannot be extended.
	baseCtx, cancelBase := context.WithCancelCause(ctx)
	runCtx, cancelTimeout := context.WithTimeoutCause(baseCtx, r.pipeCfg.RunDeadline, ErrCancelled)
	hbDone := make(chan struct{})
	defer func() {
		cancelTimeout()
		cancelBase(nil)
		<-hbDone
	}()
	go r.heartbeat(runCtx, lockKey, owner, cancelBase, hbDone, logger)

	exec := r.execFactory(desc)
	outs := &Outputs{}
	totalStages := 4
	if desc.Config.Options.Cruxes {
		totalStages = 5
	}
	completedStages := 0

	for _, stage := range models.StageOrder {
		if stage == models.StageCruxes && !desc.Config.Options.Cruxes {
			state.MarkStageSkipped(stage)
			if err := r.persist(ctx, state, lockKey, owner); err != nil {
				return nil, err
			}
			continue
		}

		if raw, ok := state.CompletedResults[stage]; ok && state.Stage(stage).Status == models.StageStatusCompleted {
			valErr := r.restoreCached(stage, raw, outs)
			if valErr == nil {
				completedStages++
				r.notify(stage, completedStages, totalStages)
				logger.Info("Reusing cached stage result", "stage", stage)
				continue
			}
			n, cntErr := r.store.IncrValidationFailure(ctx, reportID, stage)
			if cntErr != nil {
				return nil, cntErr
			}
			state.SetValidationFailure(stage, n)
			logger.Warn("Cached stage result failed revalidation",
				"stage", stage, "failures", n, "error", valErr)
			if n >= r.pipeCfg.MaxValidationFailures {
				return nil, r.failRun(ctx, state, stage, errNameStateCorrupt,
					fmt.Sprintf("cached %s result failed revalidation %d times: %v", stage, n, valErr),
					lockKey, owner, ErrCorruptedState)
			}
			delete(state.CompletedResults, stage)
		}

		state.MarkStageInProgress(stage)
		if err := r.persist(ctx, state, lockKey, owner); err != nil {
			return nil, err
		}
		logger.Info("Executing stage", "stage", stage)

		raw, usage, cost, execErr := r.executeStage(runCtx, exec, stage, desc, outs)
		if execErr != nil {
			return nil, r.handleStageError(ctx, runCtx, state, stage, execErr, lockKey, owner, logger)
		}
		state.MarkStageCompleted(stage, raw, usage, cost)
		if err := r.store.ResetValidationFailure(ctx, reportID, stage); err != nil {
			logger.Warn("Failed to reset validation failure counter", "stage", stage, "error", err)
		}
		if err := r.persist(ctx, state, lockKey, owner); err != nil {
			return nil, err
		}
		completedStages++
		r.notify(stage, completedStages, totalStages)
	}

	state.MarkCompleted()
	if err := r.persist(ctx, state, lockKey, owner); err != nil {
		return nil, err
	}

	// Keep the lock through the caller's publication window.
	if ok, err := r.locks.Extend(ctx, lockKey, owner, r.lockCfg.PostCompletionExtension); err != nil || !ok {
		logger.Warn("Failed to extend lock for publication window", "held", ok, "error", err)
	}
	succeeded = true
	logger.Info("Pipeline run completed",
		"total_tokens", state.TotalTokens,
		"total_cost", state.TotalCost,
		"total_duration_ms", state.TotalDurationMs,
	)
	return &RunResult{Outputs: *outs, State: state, LockKey: lockKey, LockOwner: owner}, nil
}

// Cancel transitions a running report to failed and invalidates its execution
// lock, which makes the running worker's next heartbeat or lock-guarded write
// abort the in-flight stage.
func (r *Runner) Cancel(ctx context.Context, reportID string) error {
	state, err := r.store.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if state.Status != models.RunStatusRunning {
		return fmt.Errorf("run for %s is %s, not running", reportID, state.Status)
	}
	stage := state.CurrentStage
	if stage == "" {
		stage = models.StageClustering
	}
	state.MarkStageFailed(stage, errNameCancelled, "cancelled by user")
	if err := r.store.Save(ctx, state); err != nil {
		return err
	}
	return r.locks.ForceRelease(ctx, lock.PipelineKey(reportID))
}

// ReleaseLock releases a successful run's publication lock. Best effort.
func (r *Runner) ReleaseLock(ctx context.Context, res *RunResult) {
	if _, err := r.locks.Release(ctx, res.LockKey, res.LockOwner); err != nil {
		slog.Warn("Failed to release publication lock",
			"lock_key", res.LockKey, "error", err)
	}
}

// prepareState loads or initializes the run state. Fresh runs overwrite any
// prior record; resume continues an interrupted (running or failed) one.
func (r *Runner) prepareState(ctx context.Context, desc *config.JobDescriptor, resume bool, logger *slog.Logger) (*models.RunState, error) {
	existing, err := r.store.Get(ctx, desc.ReportID())
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case errors.Is(err, store.ErrStateCorrupt):
		if resume {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
		}
		logger.Warn("Discarding corrupt stored state", "error", err)
		existing = nil
	case err != nil:
		return nil, err
	}

	if !resume || existing == nil {
		state := models.NewRunState(desc.ReportID(), desc.Config.FirebaseDetails.UserID)
		state.Status = models.RunStatusRunning
		return state, nil
	}
	if existing.Status == models.RunStatusCompleted || existing.Status == models.RunStatusPending {
		return nil, fmt.Errorf("%w: stored run is %s", ErrCannotResume, existing.Status)
	}
	existing.Status = models.RunStatusRunning
	existing.CurrentStage = ""
	existing.Error = nil
	for _, sa := range existing.StageAnalytics {
		if sa.Status == models.StageStatusFailed || sa.Status == models.StageStatusInProgress {
			sa.Status = models.StageStatusPending
			sa.ErrorMessage = ""
			sa.ErrorName = ""
		}
	}
	return existing, nil
}

// heartbeat extends the lock every refresh interval and cancels the run with
// ErrLockLost when extension fails.
func (r *Runner) heartbeat(ctx context.Context, lockKey, owner string, cancel context.CancelCauseFunc, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)
	ticker := time.NewTicker(r.lockCfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.locks.Extend(ctx, lockKey, owner, r.lockCfg.TTL)
			if err != nil {
				logger.Error("Lock heartbeat failed", "error", err)
				cancel(ErrLockLost)
				return
			}
			if !ok {
				logger.Error("Execution lock no longer held, aborting run")
				cancel(ErrLockLost)
				return
			}
		}
	}
}

// executeStage runs one stage executor against the accumulated outputs and
// returns the marshaled result for the state record.
func (r *Runner) executeStage(ctx context.Context, exec Executors, stage models.StageName, desc *config.JobDescriptor, outs *Outputs) (json.RawMessage, models.Usage, float64, error) {
	instr := desc.Config.Instructions
	base := stages.LLMConfig{
		Model:              desc.Config.LLM.Model,
		SystemInstructions: instr.SystemInstructions,
		OutputLanguage:     instr.OutputLanguage,
	}

	switch stage {
	case models.StageClustering:
		cfg := base
		cfg.StageInstructions = instr.ClusteringInstructions
		outcome, err := exec.Clustering.Run(ctx, stages.ClusteringInput{
			Comments: desc.Comments(),
			Config:   cfg,
		})
		if err != nil {
			return nil, models.Usage{}, 0, err
		}
		outs.Taxonomy = outcome.Data
		raw, err := json.Marshal(outcome.Data)
		return raw, outcome.Usage, outcome.Cost, err

	case models.StageExtraction:
		cfg := base
		cfg.StageInstructions = instr.ExtractionInstructions
		outcome, err := exec.Extraction.Run(ctx, stages.ExtractionInput{
			Comments: desc.Comments(),
			Taxonomy: outs.Taxonomy,
			Config:   cfg,
		})
		if err != nil {
			return nil, models.Usage{}, 0, err
		}
		outs.Claims = outcome.Data
		raw, err := json.Marshal(outcome.Data)
		return raw, outcome.Usage, outcome.Cost, err

	case models.StageSortDedup:
		cfg := base
		cfg.StageInstructions = instr.DedupInstructions
		outcome, err := exec.SortDedup.Run(ctx, stages.SortDedupInput{
			Taxonomy: outs.Taxonomy,
			Claims:   outs.Claims,
			Strategy: desc.Config.Options.SortStrategy,
			Config:   cfg,
		})
		if err != nil {
			return nil, models.Usage{}, 0, err
		}
		outs.Tree = outcome.Data
		raw, err := json.Marshal(outcome.Data)
		return raw, outcome.Usage, outcome.Cost, err

	case models.StageSummaries:
		cfg := base
		cfg.StageInstructions = instr.SummariesInstructions
		outcome, err := exec.Summaries.Run(ctx, stages.SummariesInput{
			Tree:   outs.Tree,
			Config: cfg,
		})
		if err != nil {
			return nil, models.Usage{}, 0, err
		}
		outs.Summaries = outcome.Data
		raw, err := json.Marshal(outcome.Data)
		return raw, outcome.Usage, outcome.Cost, err

	case models.StageCruxes:
		cfg := base
		cfg.StageInstructions = instr.CruxInstructions
		outcome, err := exec.Cruxes.Run(ctx, stages.CruxesInput{
			Tree:   outs.Tree,
			Config: cfg,
		})
		if err != nil {
			return nil, models.Usage{}, 0, err
		}
		outs.Cruxes = outcome.Data
		raw, err := json.Marshal(outcome.Data)
		return raw, outcome.Usage, outcome.Cost, err

	default:
		return nil, models.Usage{}, 0, fmt.Errorf("unknown stage %q", stage)
	}
}

// restoreCached revalidates a stored stage result and loads it into the
// accumulated outputs. Any validation error means the cached bytes cannot be
// trusted.
func (r *Runner) restoreCached(stage models.StageName, raw json.RawMessage, outs *Outputs) error {
	switch stage {
	case models.StageClustering:
		var taxonomy models.Taxonomy
		if err := json.Unmarshal(raw, &taxonomy); err != nil {
			return err
		}
		if err := stages.ValidateTaxonomy(taxonomy); err != nil {
			return err
		}
		outs.Taxonomy = taxonomy
	case models.StageExtraction:
		var claims models.ClaimsTree
		if err := json.Unmarshal(raw, &claims); err != nil {
			return err
		}
		if err := stages.ValidateClaimsTree(claims, outs.Taxonomy); err != nil {
			return err
		}
		outs.Claims = claims
	case models.StageSortDedup:
		var tree models.SortedTree
		if err := json.Unmarshal(raw, &tree); err != nil {
			return err
		}
		if err := stages.ValidateSortedTree(tree, outs.Taxonomy); err != nil {
			return err
		}
		outs.Tree = tree
	case models.StageSummaries:
		var summaries []models.TopicSummary
		if err := json.Unmarshal(raw, &summaries); err != nil {
			return err
		}
		if err := stages.ValidateSummaries(summaries, outs.Tree); err != nil {
			return err
		}
		outs.Summaries = summaries
	case models.StageCruxes:
		var cruxes []models.SubtopicCrux
		if err := json.Unmarshal(raw, &cruxes); err != nil {
			return err
		}
		if err := stages.ValidateCruxes(cruxes); err != nil {
			return err
		}
		outs.Cruxes = cruxes
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	return nil
}

// handleStageError maps an executor failure to the right terminal path.
// Cancellation and deadline are detected through the run context cause; lock
// loss forbids any further state write.
func (r *Runner) handleStageError(ctx, runCtx context.Context, state *models.RunState, stage models.StageName, execErr error, lockKey, owner string, logger *slog.Logger) error {
	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if errors.Is(cause, ErrLockLost) {
			logger.Error("Stage aborted after lock loss", "stage", stage)
			return ErrLockLost
		}
		msg := "run cancelled"
		if errors.Is(cause, ErrCancelled) || errors.Is(cause, context.DeadlineExceeded) {
			msg = "run deadline exceeded"
		}
		logger.Error("Run cancelled during stage", "stage", stage, "reason", msg)
		return r.failRun(ctx, state, stage, errNameCancelled, msg, lockKey, owner, ErrCancelled)
	}

	logger.Error("Stage failed", "stage", stage, "error", execErr)
	state.MarkStageFailed(stage, errNameStageFailure, execErr.Error())
	if perr := r.persist(ctx, state, lockKey, owner); perr != nil {
		return perr
	}
	return &StageFailureError{Stage: stage, Err: execErr}
}

// failRun records a terminal failure on the state and returns the sentinel.
func (r *Runner) failRun(ctx context.Context, state *models.RunState, stage models.StageName, name, msg, lockKey, owner string, sentinel error) error {
	state.MarkStageFailed(stage, name, msg)
	if err := r.persist(ctx, state, lockKey, owner); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// persist writes the state through the lock guard, mapping a rejected write
// to the runner's lock-lost sentinel.
func (r *Runner) persist(ctx context.Context, state *models.RunState, lockKey, owner string) error {
	err := r.store.SaveWithLockGuard(ctx, state, lockKey, owner)
	if errors.Is(err, store.ErrLockLost) {
		return ErrLockLost
	}
	return err
}

func (r *Runner) notify(stage models.StageName, completed, total int) {
	if r.observer == nil {
		return
	}
	r.observer.OnProgress(Progress{
		CurrentStage:    stage,
		TotalStages:     total,
		CompletedStages: completed,
		PercentComplete: completed * 100 / total,
	})
}

package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/civitas-labs/agora/pkg/bridging"
	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/pipeline"
)

// Executor runs one pipeline job. Satisfied by *pipeline.Runner.
type Executor interface {
	Run(ctx context.Context, in pipeline.RunInput) (*pipeline.RunResult, error)
	ReleaseLock(ctx context.Context, res *pipeline.RunResult)
}

// BridgingScorer scores a completed report tree. Satisfied by
// *bridging.Scorer.
type BridgingScorer interface {
	ScoreTree(ctx context.Context, tree models.SortedTree) (*bridging.Result, error)
}

// RunRegistry is the subset of Pool used by workers for run registration.
type RunRegistry interface {
	RegisterRun(reportID string, cancel context.CancelFunc)
	UnregisterRun(reportID string)
}

// Worker is a single queue worker that pops and executes jobs.
type Worker struct {
	id       string
	podID    string
	queue    *JobQueue
	config   *config.QueueConfig
	executor Executor
	scorer   BridgingScorer
	pool     RunRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu              sync.RWMutex
	status          WorkerStatus
	currentReportID string
	jobsProcessed   int
	lastActivity    time.Time
}

// NewWorker creates a queue worker. scorer may be nil (bridging disabled).
func NewWorker(id, podID string, q *JobQueue, cfg *config.QueueConfig, executor Executor, scorer BridgingScorer, pool RunRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        q,
		config:       cfg,
		executor:     executor,
		scorer:       scorer,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current job to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          w.status,
		CurrentReportID: w.currentReportID,
		JobsProcessed:   w.jobsProcessed,
		LastActivity:    w.lastActivity,
	}
}

// run is the main worker loop. The blocking pop paces polling; ErrQueueEmpty
// just loops back to re-check shutdown signals.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrQueueEmpty) {
					continue
				}
				if ctx.Err() != nil {
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess pops one job and executes it. Job-level failures are
// recorded in run state by the runner; they never crash the worker loop.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.queue.Pop(ctx, w.config.PopTimeout)
	if err != nil {
		return err
	}

	desc, err := config.ParseJobDescriptor(job.Descriptor)
	if err != nil {
		slog.Error("Dropping invalid job", "worker_id", w.id, "error", err)
		return nil
	}
	reportID := desc.ReportID()
	log := slog.With("report_id", reportID, "worker_id", w.id)
	log.Info("Job claimed", "resume", job.Resume)

	w.setStatus(WorkerStatusWorking, reportID)
	defer w.setStatus(WorkerStatusIdle, "")

	// Register for API-triggered cancellation of the local context. Remote
	// cancellation goes through the lock and reaches the runner's heartbeat.
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	w.pool.RegisterRun(reportID, cancelJob)
	defer w.pool.UnregisterRun(reportID)

	result, err := w.executor.Run(jobCtx, pipeline.RunInput{
		Descriptor: desc,
		Resume:     job.Resume,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			log.Info("Report already running elsewhere, dropping job")
		case errors.Is(err, pipeline.ErrCannotResume):
			log.Warn("Resume rejected", "error", err)
		default:
			log.Error("Pipeline run failed", "error", err)
		}
		w.recordProcessed()
		return nil
	}

	if desc.Config.Options.Bridging && w.scorer != nil {
		if scores, serr := w.scorer.ScoreTree(jobCtx, result.Outputs.Tree); serr != nil {
			log.Warn("Bridging scoring aborted", "error", serr)
		} else {
			log.Info("Bridging scoring complete",
				"scored", len(scores.Scores), "failed", scores.Failed)
		}
	}

	// The publication window ends here; release with a fresh context since
	// jobCtx may already be cancelled.
	w.executor.ReleaseLock(context.Background(), result)
	w.recordProcessed()
	log.Info("Job complete", "status", result.State.Status)
	return nil
}

func (w *Worker) recordProcessed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobsProcessed++
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, reportID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentReportID = reportID
	w.lastActivity = time.Now()
}

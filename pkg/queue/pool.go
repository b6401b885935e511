package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civitas-labs/agora/pkg/config"
)

// Pool manages a pool of queue workers and the per-pod run cancel registry.
type Pool struct {
	podID    string
	queue    *JobQueue
	config   *config.QueueConfig
	executor Executor
	scorer   BridgingScorer
	workers  []*Worker

	// Run cancel registry: report_id → cancel function for runs on this pod.
	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool
}

// NewPool creates a worker pool. scorer may be nil (bridging disabled).
func NewPool(podID string, q *JobQueue, cfg *config.QueueConfig, executor Executor, scorer BridgingScorer) *Pool {
	return &Pool{
		podID:      podID,
		queue:      q,
		config:     cfg,
		executor:   executor,
		scorer:     scorer,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.queue, p.config, p.executor, p.scorer, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits up to the graceful shutdown
// timeout for in-flight runs to finish.
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.activeRunIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active runs to complete",
			"count", len(active), "report_ids", active)
	}

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		slog.Error("Graceful shutdown timeout exceeded, abandoning active runs",
			"report_ids", p.activeRunIDs())
	}
}

// RegisterRun stores a cancel function for API-triggered cancellation.
func (p *Pool) RegisterRun(reportID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[reportID] = cancel
}

// UnregisterRun removes the cancel function when processing ends.
func (p *Pool) UnregisterRun(reportID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, reportID)
}

// CancelRun cancels a run's context on this pod. Returns true when the run
// was found locally; runs on other pods are cancelled through the lock.
func (p *Pool) CancelRun(reportID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRuns[reportID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	queueDepth, err := p.queue.Depth(ctx)
	storeReachable := err == nil
	var storeError string
	if err != nil {
		slog.Error("Failed to query queue depth for health check",
			"pod_id", p.podID, "error", err)
		storeError = err.Error()
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && storeReachable,
		StoreReachable: storeReachable,
		StoreError:     storeError,
		PodID:          p.podID,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		QueueDepth:     queueDepth,
		WorkerStats:    workerStats,
	}
}

// activeRunIDs returns IDs of currently processing runs (for logging).
func (p *Pool) activeRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

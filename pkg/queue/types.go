// Package queue implements the Redis-list job queue and the worker pool that
// drains it. Jobs are self-contained report descriptors; a blocking pop with
// a short timeout gives workers prompt shutdown without busy polling.
package queue

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrQueueEmpty indicates no job was available within the pop timeout.
var ErrQueueEmpty = errors.New("no jobs available")

// Job is the queue envelope: the raw descriptor payload plus the resume flag
// for re-enqueued interrupted runs.
type Job struct {
	Descriptor json.RawMessage `json:"descriptor"`
	Resume     bool            `json:"resume,omitempty"`
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a snapshot of one worker's state.
type WorkerHealth struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	CurrentReportID string       `json:"currentReportId,omitempty"`
	JobsProcessed   int          `json:"jobsProcessed"`
	LastActivity    time.Time    `json:"lastActivity"`
}

// PoolHealth is a snapshot of the pool's state for the health endpoint.
type PoolHealth struct {
	IsHealthy       bool           `json:"isHealthy"`
	StoreReachable  bool           `json:"storeReachable"`
	StoreError      string         `json:"storeError,omitempty"`
	PodID           string         `json:"podId"`
	ActiveWorkers   int            `json:"activeWorkers"`
	TotalWorkers    int            `json:"totalWorkers"`
	QueueDepth      int64          `json:"queueDepth"`
	WorkerStats     []WorkerHealth `json:"workerStats"`
}

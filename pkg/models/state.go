package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StateVersion is the current run state schema version.
const StateVersion = "1.0"

// StageName identifies one of the fixed pipeline stages.
type StageName string

// Pipeline stages, in execution order.
const (
	StageClustering StageName = "clustering"
	StageExtraction StageName = "extraction"
	StageSortDedup  StageName = "sort_and_deduplicate"
	StageSummaries  StageName = "summaries"
	StageCruxes     StageName = "cruxes"
)

// StageOrder is the fixed execution order of the pipeline.
// Cruxes is the optional tail stage (skipped unless enabled).
var StageOrder = []StageName{
	StageClustering,
	StageExtraction,
	StageSortDedup,
	StageSummaries,
	StageCruxes,
}

// RunStatus is the overall status of a pipeline run.
type RunStatus string

// Run status values.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StageStatus is the status of a single stage within a run.
type StageStatus string

// Stage status values.
const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "inProgress"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
	StageStatusSkipped    StageStatus = "skipped"
)

// Usage captures token consumption for one LLM call or stage.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// StageAnalytics is the per-stage analytics ledger entry.
type StageAnalytics struct {
	Status       StageStatus `json:"status"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	DurationMs   *int64      `json:"durationMs,omitempty"`
	InputTokens  *int        `json:"inputTokens,omitempty"`
	OutputTokens *int        `json:"outputTokens,omitempty"`
	TotalTokens  *int        `json:"totalTokens,omitempty"`
	Cost         *float64    `json:"cost,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorName    string      `json:"errorName,omitempty"`
}

// RunError describes the terminal error of a failed run.
type RunError struct {
	Message string    `json:"message"`
	Name    string    `json:"name"`
	Stage   StageName `json:"stage,omitempty"`
}

// RunState is the durable per-run record held in the state store. It is
// created on first admission of a reportId and mutated only by the
// lock-holding runner. Bit-for-bit persistence is a public surface:
// downstream publication reads StageAnalytics, TotalTokens, and TotalCost.
type RunState struct {
	Version            string                          `json:"version"`
	ReportID           string                          `json:"reportId"`
	UserID             string                          `json:"userId"`
	CreatedAt          time.Time                       `json:"createdAt"`
	UpdatedAt          time.Time                       `json:"updatedAt"`
	Status             RunStatus                       `json:"status"`
	CurrentStage       StageName                       `json:"currentStage,omitempty"`
	StageAnalytics     map[StageName]*StageAnalytics   `json:"stageAnalytics"`
	CompletedResults   map[StageName]json.RawMessage   `json:"completedResults"`
	ValidationFailures map[StageName]int               `json:"validationFailures"`
	Error              *RunError                       `json:"error,omitempty"`
	TotalTokens        int                             `json:"totalTokens"`
	TotalCost          float64                         `json:"totalCost"`
	TotalDurationMs    int64                           `json:"totalDurationMs"`
}

// NewRunState creates an initial run state with every stage pending and
// validation failure counters at zero.
func NewRunState(reportID, userID string) *RunState {
	now := time.Now().UTC()
	analytics := make(map[StageName]*StageAnalytics, len(StageOrder))
	failures := make(map[StageName]int, len(StageOrder))
	for _, stage := range StageOrder {
		analytics[stage] = &StageAnalytics{Status: StageStatusPending}
		failures[stage] = 0
	}
	return &RunState{
		Version:            StateVersion,
		ReportID:           reportID,
		UserID:             userID,
		CreatedAt:          now,
		UpdatedAt:          now,
		Status:             RunStatusPending,
		StageAnalytics:     analytics,
		CompletedResults:   make(map[StageName]json.RawMessage),
		ValidationFailures: failures,
	}
}

// Stage returns the analytics entry for a stage, creating it if missing.
// Older stored states may predate a stage (schema drift on resume).
func (s *RunState) Stage(name StageName) *StageAnalytics {
	if s.StageAnalytics == nil {
		s.StageAnalytics = make(map[StageName]*StageAnalytics)
	}
	sa, ok := s.StageAnalytics[name]
	if !ok {
		sa = &StageAnalytics{Status: StageStatusPending}
		s.StageAnalytics[name] = sa
	}
	return sa
}

// MarkStageInProgress transitions a stage to inProgress and records it as the
// run's current stage.
func (s *RunState) MarkStageInProgress(name StageName) {
	now := time.Now().UTC()
	sa := s.Stage(name)
	sa.Status = StageStatusInProgress
	sa.StartedAt = &now
	sa.ErrorMessage = ""
	sa.ErrorName = ""
	s.CurrentStage = name
	s.Status = RunStatusRunning
}

// MarkStageCompleted transitions a stage to completed, stores its result and
// analytics, resets its validation failure counter, and refreshes run totals.
func (s *RunState) MarkStageCompleted(name StageName, result json.RawMessage, usage Usage, cost float64) {
	now := time.Now().UTC()
	sa := s.Stage(name)
	sa.Status = StageStatusCompleted
	sa.CompletedAt = &now
	if sa.StartedAt != nil {
		ms := now.Sub(*sa.StartedAt).Milliseconds()
		sa.DurationMs = &ms
	}
	in, out, total := usage.InputTokens, usage.OutputTokens, usage.TotalTokens
	sa.InputTokens = &in
	sa.OutputTokens = &out
	sa.TotalTokens = &total
	sa.Cost = &cost

	if s.CompletedResults == nil {
		s.CompletedResults = make(map[StageName]json.RawMessage)
	}
	s.CompletedResults[name] = result
	s.SetValidationFailure(name, 0)
	s.RecomputeTotals()
}

// SetValidationFailure records a stage's cached-result revalidation failure
// count. The map can be absent on states stored before the counter existed.
func (s *RunState) SetValidationFailure(name StageName, n int) {
	if s.ValidationFailures == nil {
		s.ValidationFailures = make(map[StageName]int)
	}
	s.ValidationFailures[name] = n
}

// MarkStageSkipped transitions a stage to skipped.
func (s *RunState) MarkStageSkipped(name StageName) {
	sa := s.Stage(name)
	sa.Status = StageStatusSkipped
	delete(s.CompletedResults, name)
}

// MarkStageFailed transitions a stage and the run to failed.
func (s *RunState) MarkStageFailed(name StageName, errName, errMsg string) {
	now := time.Now().UTC()
	sa := s.Stage(name)
	sa.Status = StageStatusFailed
	sa.CompletedAt = &now
	if sa.StartedAt != nil {
		ms := now.Sub(*sa.StartedAt).Milliseconds()
		sa.DurationMs = &ms
	}
	sa.ErrorMessage = errMsg
	sa.ErrorName = errName
	delete(s.CompletedResults, name)

	s.Status = RunStatusFailed
	s.Error = &RunError{Message: errMsg, Name: errName, Stage: name}
}

// MarkCompleted transitions the run to completed. Every stage must already be
// completed or skipped; the caller is responsible for that ordering.
func (s *RunState) MarkCompleted() {
	s.Status = RunStatusCompleted
	s.CurrentStage = ""
	s.Error = nil
	s.RecomputeTotals()
}

// RecomputeTotals refreshes TotalTokens, TotalCost, and TotalDurationMs from
// the completed stages' analytics. Totals sum over completed stages only.
func (s *RunState) RecomputeTotals() {
	var tokens int
	var cost float64
	var durationMs int64
	for _, sa := range s.StageAnalytics {
		if sa.Status != StageStatusCompleted {
			continue
		}
		if sa.TotalTokens != nil {
			tokens += *sa.TotalTokens
		}
		if sa.Cost != nil {
			cost += *sa.Cost
		}
		if sa.DurationMs != nil {
			durationMs += *sa.DurationMs
		}
	}
	s.TotalTokens = tokens
	s.TotalCost = cost
	s.TotalDurationMs = durationMs
}

// validStageStatuses is the closed set of per-stage statuses.
var validStageStatuses = map[StageStatus]bool{
	StageStatusPending:    true,
	StageStatusInProgress: true,
	StageStatusCompleted:  true,
	StageStatusFailed:     true,
	StageStatusSkipped:    true,
}

// validRunStatuses is the closed set of run statuses.
var validRunStatuses = map[RunStatus]bool{
	RunStatusPending:   true,
	RunStatusRunning:   true,
	RunStatusCompleted: true,
	RunStatusFailed:    true,
}

// Validate checks the structural invariants of a stored run state. The state
// store uses it to distinguish a corrupt payload from a missing one; stored
// bytes and code can drift, so this is a runtime check rather than a type.
func (s *RunState) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("missing version")
	}
	if s.ReportID == "" {
		return fmt.Errorf("missing reportId")
	}
	if !validRunStatuses[s.Status] {
		return fmt.Errorf("invalid run status %q", s.Status)
	}
	for stage, sa := range s.StageAnalytics {
		if sa == nil {
			return fmt.Errorf("stage %s: nil analytics", stage)
		}
		if !validStageStatuses[sa.Status] {
			return fmt.Errorf("stage %s: invalid status %q", stage, sa.Status)
		}
		_, hasResult := s.CompletedResults[stage]
		if sa.Status == StageStatusCompleted && !hasResult {
			return fmt.Errorf("stage %s: completed without stored result", stage)
		}
		if sa.Status != StageStatusCompleted && hasResult {
			return fmt.Errorf("stage %s: stored result without completed status", stage)
		}
	}
	for stage, n := range s.ValidationFailures {
		if n < 0 {
			return fmt.Errorf("stage %s: negative validation failure count %d", stage, n)
		}
	}
	if s.Status == RunStatusFailed && s.Error == nil {
		return fmt.Errorf("failed run without error")
	}
	if s.Status == RunStatusCompleted && s.Error != nil {
		return fmt.Errorf("completed run with error present")
	}
	return nil
}

// IsTerminal reports whether the run reached a terminal status.
func (s *RunState) IsTerminal() bool {
	return s.Status == RunStatusCompleted || s.Status == RunStatusFailed
}

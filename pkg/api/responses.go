package api

import "github.com/civitas-labs/agora/pkg/queue"

// CreateReportResponse is returned by POST /api/v1/reports.
type CreateReportResponse struct {
	ReportID string `json:"reportId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// CancelReportResponse is returned by POST /api/v1/reports/:id/cancel.
type CancelReportResponse struct {
	ReportID string `json:"reportId"`
	Message  string `json:"message"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	WorkerPool *queue.PoolHealth `json:"workerPool,omitempty"`
}

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/queue"
	"github.com/civitas-labs/agora/pkg/store"
)

// maxDescriptorBytes bounds the request body; consultations with tens of
// thousands of comments stay well under this.
const maxDescriptorBytes = 64 << 20

// createReport handles POST /api/v1/reports: validate the descriptor and
// enqueue it. Admission control (duplicate submissions) happens at the
// worker's lock acquire, not here.
func (s *Server) createReport(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDescriptorBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}

	desc, err := config.ParseJobDescriptor(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.jobs.Enqueue(c.Request.Context(), queue.Job{Descriptor: payload}); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, CreateReportResponse{
		ReportID: desc.ReportID(),
		Status:   "queued",
		Message:  "report generation queued",
	})
}

// reportStatus handles GET /api/v1/reports/:id/status. The stored run state
// is the response body.
func (s *Server) reportStatus(c *gin.Context) {
	reportID := c.Param("id")
	state, err := s.states.Get(c.Request.Context(), reportID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run state for report"})
		case errors.Is(err, store.ErrStateCorrupt):
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "stored run state is corrupt"})
		default:
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "state store unavailable"})
		}
		return
	}
	c.JSON(http.StatusOK, state)
}

// cancelReport handles POST /api/v1/reports/:id/cancel. Local runs get their
// context cancelled directly; in either case the state transitions to failed
// and the execution lock is invalidated so a remote holder aborts on its next
// heartbeat.
func (s *Server) cancelReport(c *gin.Context) {
	reportID := c.Param("id")

	state, err := s.states.Get(c.Request.Context(), reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run state for report"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "state store unavailable"})
		return
	}
	if state.Status != models.RunStatusRunning {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "run is not in progress"})
		return
	}

	if err := s.canceller.Cancel(c.Request.Context(), reportID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.pool.CancelRun(reportID)

	c.JSON(http.StatusAccepted, CancelReportResponse{
		ReportID: reportID,
		Message:  "cancellation requested",
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civitas-labs/agora/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// health handles GET /health. Minimal, safe response suitable for
// unauthenticated orchestrator probes: only the pool and its store are
// checked, never the external LLM or classifier services.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	poolHealth := s.pool.Health(ctx)
	status := healthStatusHealthy
	httpStatus := http.StatusOK
	if !poolHealth.IsHealthy {
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:     status,
		Version:    version.Full(),
		WorkerPool: poolHealth,
	})
}

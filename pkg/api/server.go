// Package api exposes the HTTP surface: report submission, status, and
// cancellation, plus the health endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civitas-labs/agora/pkg/queue"
	"github.com/civitas-labs/agora/pkg/store"
)

// Canceller cancels a running report. Satisfied by *pipeline.Runner.
type Canceller interface {
	Cancel(ctx context.Context, reportID string) error
}

// Server is the HTTP API server.
type Server struct {
	jobs      *queue.JobQueue
	pool      *queue.Pool
	states    *store.StateStore
	canceller Canceller
	httpSrv   *http.Server
}

// NewServer creates the API server.
func NewServer(jobs *queue.JobQueue, pool *queue.Pool, states *store.StateStore, canceller Canceller) *Server {
	return &Server{
		jobs:      jobs,
		pool:      pool,
		states:    states,
		canceller: canceller,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reports", s.createReport)
		v1.GET("/reports/:id/status", s.reportStatus)
		v1.POST("/reports/:id/cancel", s.cancelReport)
	}
	return router
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/pipeline"
	"github.com/civitas-labs/agora/pkg/queue"
	"github.com/civitas-labs/agora/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// nopExecutor satisfies queue.Executor for pools that never receive jobs
// during a test.
type nopExecutor struct{}

func (nopExecutor) Run(context.Context, pipeline.RunInput) (*pipeline.RunResult, error) {
	return nil, pipeline.ErrAlreadyRunning
}
func (nopExecutor) ReleaseLock(context.Context, *pipeline.RunResult) {}

type fakeCanceller struct {
	cancelled []string
	err       error
}

func (f *fakeCanceller) Cancel(_ context.Context, reportID string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, reportID)
	return nil
}

type apiFixture struct {
	router    *gin.Engine
	jobs      *queue.JobQueue
	pool      *queue.Pool
	states    *store.StateStore
	canceller *fakeCanceller
	mr        *miniredis.Miniredis
}

func newAPIFixture(t *testing.T, startPool bool) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	jobs := queue.NewJobQueue(rdb, "test_jobs")
	cfg := &config.QueueConfig{
		WorkerCount:             1,
		JobQueueKey:             "test_jobs_unused",
		PopTimeout:              100 * time.Millisecond,
		GracefulShutdownTimeout: 5 * time.Second,
	}
	// The pool drains a different key so enqueued test jobs stay observable.
	pool := queue.NewPool("pod-a", queue.NewJobQueue(rdb, cfg.JobQueueKey), cfg, nopExecutor{}, nil)
	if startPool {
		require.NoError(t, pool.Start(context.Background()))
		t.Cleanup(pool.Stop)
	}

	states := store.NewStateStore(rdb, time.Hour, 10*time.Minute)
	canceller := &fakeCanceller{}
	srv := NewServer(jobs, pool, states, canceller)
	return &apiFixture{
		router:    srv.Router(),
		jobs:      jobs,
		pool:      pool,
		states:    states,
		canceller: canceller,
		mr:        mr,
	}
}

func validDescriptorPayload(t *testing.T, reportID string) []byte {
	t.Helper()
	desc := config.JobDescriptor{
		Config: config.ReportConfig{
			FirebaseDetails: config.FirebaseDetails{ReportID: reportID, UserID: "user-1"},
			LLM:             config.LLMSpec{Model: "gpt-4o-mini"},
			Instructions: config.Instructions{
				SystemInstructions:     "s",
				ClusteringInstructions: "c",
				ExtractionInstructions: "e",
				DedupInstructions:      "d",
				SummariesInstructions:  "m",
			},
			Options: config.Options{SortStrategy: models.SortByNumClaims},
			Env:     config.EnvVars{OpenAIAPIKey: "sk-test"},
		},
		Data: []config.RawComment{{ID: "c1", Comment: "We need more buses."}},
		ReportDetails: config.ReportDetails{
			Title: "t", Description: "d", Question: "q", Filename: "f",
		},
	}
	payload, err := json.Marshal(desc)
	require.NoError(t, err)
	return payload
}

func TestCreateReport(t *testing.T) {
	t.Run("valid descriptor is queued", func(t *testing.T) {
		f := newAPIFixture(t, false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(validDescriptorPayload(t, "r1")))
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp CreateReportResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "r1", resp.ReportID)
		assert.Equal(t, "queued", resp.Status)

		depth, err := f.jobs.Depth(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), depth)
	})

	t.Run("invalid descriptor is rejected", func(t *testing.T) {
		f := newAPIFixture(t, false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader([]byte(`{"config": {}}`)))
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "invalid job descriptor")

		depth, err := f.jobs.Depth(context.Background())
		require.NoError(t, err)
		assert.Zero(t, depth)
	})

	t.Run("unavailable queue returns 503", func(t *testing.T) {
		f := newAPIFixture(t, false)
		f.mr.Close()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(validDescriptorPayload(t, "r1")))
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestReportStatus(t *testing.T) {
	t.Run("unknown report", func(t *testing.T) {
		f := newAPIFixture(t, false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/ghost/status", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("existing report returns its state", func(t *testing.T) {
		f := newAPIFixture(t, false)
		state := models.NewRunState("r1", "user-1")
		state.MarkStageInProgress(models.StageExtraction)
		require.NoError(t, f.states.Save(context.Background(), state))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1/status", nil)
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.RunState
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, models.RunStatusRunning, got.Status)
		assert.Equal(t, models.StageExtraction, got.CurrentStage)
	})

	t.Run("corrupt state returns 500", func(t *testing.T) {
		f := newAPIFixture(t, false)
		require.NoError(t, f.mr.Set(store.StateKey("r1"), "{broken"))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1/status", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestCancelReport(t *testing.T) {
	t.Run("unknown report", func(t *testing.T) {
		f := newAPIFixture(t, false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/ghost/cancel", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, f.canceller.cancelled)
	})

	t.Run("terminal run conflicts", func(t *testing.T) {
		f := newAPIFixture(t, false)
		state := models.NewRunState("r1", "user-1")
		state.Status = models.RunStatusCompleted
		require.NoError(t, f.states.Save(context.Background(), state))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/r1/cancel", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, f.canceller.cancelled)
	})

	t.Run("running run is cancelled", func(t *testing.T) {
		f := newAPIFixture(t, false)
		state := models.NewRunState("r1", "user-1")
		state.MarkStageInProgress(models.StageClustering)
		require.NoError(t, f.states.Save(context.Background(), state))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/r1/cancel", nil)
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"r1"}, f.canceller.cancelled)
		var resp CancelReportResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "r1", resp.ReportID)
	})

	t.Run("canceller failure returns 500", func(t *testing.T) {
		f := newAPIFixture(t, false)
		f.canceller.err = errors.New("store exploded")
		state := models.NewRunState("r1", "user-1")
		state.MarkStageInProgress(models.StageClustering)
		require.NoError(t, f.states.Save(context.Background(), state))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/r1/cancel", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy pool", func(t *testing.T) {
		f := newAPIFixture(t, true)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusHealthy, resp.Status)
		assert.NotEmpty(t, resp.Version)
		require.NotNil(t, resp.WorkerPool)
		assert.Equal(t, 1, resp.WorkerPool.TotalWorkers)
	})

	t.Run("unstarted pool is unhealthy", func(t *testing.T) {
		f := newAPIFixture(t, false)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

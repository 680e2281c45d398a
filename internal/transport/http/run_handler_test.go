package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/services"
	"ghgquant/internal/source"
	"ghgquant/pkg/contracts/domain"
)

type stubExecutor struct {
	report *services.RunReport
	err    error
	gotQ   source.Query
}

func (s *stubExecutor) Execute(_ context.Context, q source.Query) (*services.RunReport, error) {
	s.gotQ = q
	return s.report, s.err
}

type stubArchive struct {
	runs map[string]domain.RunSummary
	aggs map[string][]domain.AggregateRow
}

func (s *stubArchive) GetRun(_ context.Context, runID string) (domain.RunSummary, error) {
	run, ok := s.runs[runID]
	if !ok {
		return domain.RunSummary{}, apperrors.NewNotFoundError("run " + runID)
	}
	return run, nil
}

func (s *stubArchive) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	var out []domain.RunSummary
	for _, run := range s.runs {
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubArchive) GetAggregates(_ context.Context, runID, profile string) ([]domain.AggregateRow, error) {
	rows, ok := s.aggs[runID+"/"+profile]
	if !ok {
		return nil, apperrors.NewNotFoundError("aggregates")
	}
	return rows, nil
}

func testRouter(executor RunExecutor, archive RunArchive) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := NewHealthHandler(services.NewHealthService(nil, logger), logger)
	return NewRouter(RouterConfig{
		Runs:           NewRunHandler(executor, archive, logger),
		Health:         health,
		Logger:         logger,
		RequestTimeout: 5 * time.Second,
	})
}

func TestCreateRun(t *testing.T) {
	executor := &stubExecutor{report: &services.RunReport{
		Summary: domain.RunSummary{RunID: "run-1", Status: domain.RunStatusCompleted, Accepted: 3},
		Files:   []string{"output/nj/county_stats.csv"},
	}}
	router := testRouter(executor, &stubArchive{})

	body, _ := json.Marshal(RunRequest{SourceID: "epa", StateCode: "NJ", Year: 2020})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "NJ", executor.gotQ.StateCode)
	assert.Equal(t, 2020, executor.gotQ.Year)

	var report services.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.Summary.RunID)
	assert.NotEmpty(t, report.Files)
}

func TestCreateRunRejectsUnknownState(t *testing.T) {
	executor := &stubExecutor{}
	router := testRouter(executor, &stubArchive{})

	body, _ := json.Marshal(RunRequest{SourceID: "epa", StateCode: "XX"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, executor.gotQ.SourceID, "invalid requests never reach the executor")
}

func TestCreateRunUpstreamFailure(t *testing.T) {
	executor := &stubExecutor{
		report: &services.RunReport{Summary: domain.RunSummary{Status: domain.RunStatusFailed}},
		err:    apperrors.NewNetworkError("upstream unreachable", nil),
	}
	router := testRouter(executor, &stubArchive{})

	body, _ := json.Marshal(RunRequest{SourceID: "epa", StateCode: "NJ"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRun(t *testing.T) {
	archive := &stubArchive{runs: map[string]domain.RunSummary{
		"run-1": {RunID: "run-1", StateCode: "NJ", Status: domain.RunStatusCompleted},
	}}
	router := testRouter(&stubExecutor{}, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsLimitValidation(t *testing.T) {
	router := testRouter(&stubExecutor{}, &stubArchive{})

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAggregates(t *testing.T) {
	archive := &stubArchive{aggs: map[string][]domain.AggregateRow{
		"run-1/county_stats": {
			{Key: domain.GroupKey{State: "NJ", CountyFIPS: "34039"}, TotalQuantity: 600, RecordCount: 3},
		},
	}}
	router := testRouter(&stubExecutor{}, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/aggregates/county_stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Profile string               `json:"profile"`
		Rows    []domain.AggregateRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "county_stats", payload.Profile)
	require.Len(t, payload.Rows, 1)
	assert.InDelta(t, 600, payload.Rows[0].TotalQuantity, 1e-9)
}

func TestHealthEndpoints(t *testing.T) {
	router := testRouter(&stubExecutor{}, &stubArchive{})

	for _, path := range []string{"/api/health", "/api/health/live", "/api/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := testRouter(&stubExecutor{}, &stubArchive{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"), "existing ids are preserved")
}

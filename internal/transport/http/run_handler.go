// Package http exposes the report server API: trigger pipeline runs and
// query archived runs and their aggregates.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/services"
	"ghgquant/internal/source"
	"ghgquant/pkg/contracts/domain"
)

// RunExecutor triggers pipeline runs. Satisfied by services.RunService.
type RunExecutor interface {
	Execute(ctx context.Context, q source.Query) (*services.RunReport, error)
}

// RunArchive reads archived runs. Satisfied by store.Store.
type RunArchive interface {
	GetRun(ctx context.Context, runID string) (domain.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	GetAggregates(ctx context.Context, runID, profile string) ([]domain.AggregateRow, error)
}

// RunHandler handles run-related HTTP requests.
type RunHandler struct {
	executor RunExecutor
	archive  RunArchive
	logger   *slog.Logger
}

// NewRunHandler creates a run handler.
func NewRunHandler(executor RunExecutor, archive RunArchive, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		executor: executor,
		archive:  archive,
		logger:   logger.With(slog.String("handler", "runs")),
	}
}

// RunRequest is the POST /api/runs payload.
type RunRequest struct {
	SourceID  string `json:"source_id"`
	StateCode string `json:"state_code"`
	Year      int    `json:"year,omitempty"`
	Table     string `json:"table,omitempty"`
}

// Bind validates the request after decoding.
func (r *RunRequest) Bind(_ *http.Request) error {
	q := source.Query{
		SourceID:  r.SourceID,
		StateCode: r.StateCode,
		Year:      r.Year,
		Table:     r.Table,
	}
	return q.Validate()
}

// Create handles POST /api/runs: execute a pipeline run synchronously and
// return its report.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &RunRequest{}
	if err := render.Bind(r, req); err != nil {
		h.logger.WarnContext(ctx, "invalid run request", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewErrorResponse(h.toAPIError(err, apperrors.ErrInvalidRequest)))
		return
	}

	report, err := h.executor.Execute(ctx, source.Query{
		SourceID:  req.SourceID,
		StateCode: req.StateCode,
		Year:      req.Year,
		Table:     req.Table,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "run execution failed",
			slog.String("source_id", req.SourceID),
			slog.String("state", req.StateCode),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewErrorResponse(h.toAPIError(err, apperrors.ErrInternalServer)))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}

// List handles GET /api/runs?limit=N.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			render.Render(w, r, apperrors.NewErrorResponse(
				apperrors.ErrValidationField("limit", "must be a positive integer")))
			return
		}
		limit = parsed
	}

	runs, err := h.archive.ListRuns(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list runs", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewErrorResponse(h.toAPIError(err, apperrors.ErrInternalServer)))
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	render.JSON(w, r, map[string]any{"runs": runs, "count": len(runs)})
}

// Get handles GET /api/runs/{runID}.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	summary, err := h.archive.GetRun(ctx, runID)
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(h.toAPIError(err, apperrors.ErrRunNotFound)))
		return
	}
	render.JSON(w, r, summary)
}

// Aggregates handles GET /api/runs/{runID}/aggregates/{profile}.
func (h *RunHandler) Aggregates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")
	profile := chi.URLParam(r, "profile")

	rows, err := h.archive.GetAggregates(ctx, runID, profile)
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(h.toAPIError(err, apperrors.ErrNotFound)))
		return
	}
	render.JSON(w, r, map[string]any{
		"run_id":  runID,
		"profile": profile,
		"rows":    rows,
	})
}

// toAPIError maps internal errors onto the HTTP surface, falling back to
// the given default for untyped errors.
func (h *RunHandler) toAPIError(err error, fallback *apperrors.APIError) *apperrors.APIError {
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return apperrors.FromAppError(appErr)
	}
	return fallback
}

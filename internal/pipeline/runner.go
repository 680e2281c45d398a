package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/infrastructure"
	"ghgquant/internal/source"
	"ghgquant/pkg/contracts/domain"
)

// Profile names one aggregation view over the normalized records.
type Profile struct {
	Name       string
	Dimensions []domain.Dimension
}

// DefaultProfiles returns the standard report set: per-county, per-sector,
// and per-year statistics within a state.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "county_stats", Dimensions: []domain.Dimension{domain.DimState, domain.DimCounty}},
		{Name: "industry_stats", Dimensions: []domain.Dimension{domain.DimState, domain.DimSector}},
		{Name: "temporal_stats", Dimensions: []domain.Dimension{domain.DimState, domain.DimYear}},
	}
}

// RunResult carries everything a single pipeline run produced.
type RunResult struct {
	Summary  domain.RunSummary
	Records  []domain.EmissionRecord
	Rejected []domain.ValidationResult
	// Profiles maps profile name to its sorted aggregate rows.
	Profiles map[string][]domain.AggregateRow
}

// Runner wires the stages together: fetch, validate, normalize, aggregate.
// Stages communicate through fully materialized slices, so a run's output
// depends only on its input.
type Runner struct {
	registry   *source.Registry
	ruleSets   map[string]RuleSet
	normalizer *Normalizer
	profiles   []Profile
	topReasons int
	metrics    *infrastructure.PipelineMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// RunnerOption configures optional Runner collaborators.
type RunnerOption func(*Runner)

// WithMetrics installs pipeline metric instruments.
func WithMetrics(m *infrastructure.PipelineMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer installs a tracer for per-stage spans.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// WithProfiles overrides the default aggregation profiles.
func WithProfiles(profiles []Profile) RunnerOption {
	return func(r *Runner) { r.profiles = profiles }
}

// NewRunner creates a pipeline runner. topReasons caps how many distinct
// rejection reasons the run summary reports.
func NewRunner(registry *source.Registry, ruleSets map[string]RuleSet, normalizer *Normalizer, topReasons int, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		registry:   registry,
		ruleSets:   ruleSets,
		normalizer: normalizer,
		profiles:   DefaultProfiles(),
		topReasons: topReasons,
		tracer:     noop.NewTracerProvider().Tracer("pipeline"),
		logger:     logger.With(slog.String("component", "pipeline_runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one end-to-end pipeline run for the query. An empty
// upstream result is not an error: the run completes with status "empty"
// and no aggregates. A missing field mapping is fatal and fails the run.
func (r *Runner) Run(ctx context.Context, q source.Query) (*RunResult, error) {
	runID := uuid.New().String()
	ctx = infrastructure.WithTraceID(ctx, runID)
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("source.id", q.SourceID),
		attribute.String("query.state", q.StateCode),
		attribute.Int("query.year", q.Year),
	))
	defer span.End()

	startedAt := time.Now()
	result := &RunResult{
		Summary: domain.RunSummary{
			RunID:     runID,
			SourceID:  q.SourceID,
			StateCode: q.StateCode,
			Year:      q.Year,
			Table:     q.Table,
			StartedAt: startedAt,
		},
		Profiles: make(map[string][]domain.AggregateRow),
	}
	logger := r.logger.With(
		slog.String("run_id", runID),
		slog.String("source_id", q.SourceID),
		slog.String("state", q.StateCode))

	raw, err := r.fetch(ctx, q)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrTypeEmptyResult) {
			logger.WarnContext(ctx, "source returned no records", slog.String("error", err.Error()))
			r.finish(ctx, result, domain.RunStatusEmpty, span)
			return result, nil
		}
		span.SetStatus(codes.Error, err.Error())
		r.finish(ctx, result, domain.RunStatusFailed, span)
		return result, err
	}
	result.Summary.Fetched = len(raw)

	rules, ok := r.ruleSets[q.SourceID]
	if !ok {
		err := apperrors.NewConfigError(fmt.Sprintf("no validation rules registered for source %q", q.SourceID), nil)
		span.SetStatus(codes.Error, err.Error())
		r.finish(ctx, result, domain.RunStatusFailed, span)
		return result, err
	}

	accepted, rejected := r.validateStage(ctx, rules, raw)
	normalized, normRejected, err := r.normalizeStage(ctx, q.SourceID, accepted)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.finish(ctx, result, domain.RunStatusFailed, span)
		return result, err
	}
	rejected = append(rejected, normRejected...)

	result.Records = normalized
	result.Rejected = rejected
	result.Summary.Accepted = len(normalized)
	result.Summary.Rejected = len(rejected)
	result.Summary.TopRejections = TopRejectionReasons(rejected, r.topReasons)

	groups := r.aggregateStage(ctx, normalized, result.Profiles)
	result.Summary.Groups = groups

	logger.InfoContext(ctx, "pipeline run complete",
		slog.Int("fetched", result.Summary.Fetched),
		slog.Int("accepted", result.Summary.Accepted),
		slog.Int("rejected", result.Summary.Rejected),
		slog.Int("groups", groups),
		slog.Duration("duration", time.Since(startedAt)))

	r.finish(ctx, result, domain.RunStatusCompleted, span)
	return result, nil
}

func (r *Runner) fetch(ctx context.Context, q source.Query) ([]domain.RawRecord, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	fetcher, err := r.registry.Lookup(q.SourceID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := fetcher.Fetch(ctx, q)
	if r.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("source_id", q.SourceID))
		r.metrics.FetchDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil && !apperrors.IsType(err, apperrors.ErrTypeEmptyResult) {
			r.metrics.UpstreamFailures.Add(ctx, 1, attrs)
		}
		if err == nil {
			r.metrics.RecordsFetched.Add(ctx, int64(len(raw)), attrs)
		}
	}
	return raw, err
}

func (r *Runner) validateStage(ctx context.Context, rules RuleSet, raw []domain.RawRecord) ([]domain.RawRecord, []domain.ValidationResult) {
	ctx, span := r.tracer.Start(ctx, "pipeline.validate")
	defer span.End()

	accepted, rejected := NewValidator(rules).ValidateAll(raw)
	span.SetAttributes(
		attribute.Int("records.accepted", len(accepted)),
		attribute.Int("records.rejected", len(rejected)),
	)
	if r.metrics != nil {
		r.metrics.RecordsAccepted.Add(ctx, int64(len(accepted)))
		r.metrics.RecordsRejected.Add(ctx, int64(len(rejected)))
	}
	return accepted, rejected
}

func (r *Runner) normalizeStage(ctx context.Context, sourceID string, accepted []domain.RawRecord) ([]domain.EmissionRecord, []domain.ValidationResult, error) {
	_, span := r.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	normalized, rejected, err := r.normalizer.NormalizeAll(sourceID, accepted)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return normalized, rejected, err
}

func (r *Runner) aggregateStage(ctx context.Context, records []domain.EmissionRecord, out map[string][]domain.AggregateRow) int {
	ctx, span := r.tracer.Start(ctx, "pipeline.aggregate")
	defer span.End()

	total := 0
	for _, profile := range r.profiles {
		rows := NewAggregator(profile.Dimensions...).Aggregate(records)
		out[profile.Name] = rows
		total += len(rows)
	}
	span.SetAttributes(attribute.Int("groups.total", total))
	if r.metrics != nil {
		r.metrics.GroupsProduced.Add(ctx, int64(total))
	}
	return total
}

func (r *Runner) finish(ctx context.Context, result *RunResult, status domain.RunStatus, span trace.Span) {
	result.Summary.Status = status
	result.Summary.FinishedAt = time.Now()
	span.SetAttributes(attribute.String("run.status", string(status)))
	if r.metrics != nil {
		r.metrics.RunDuration.Record(ctx, result.Summary.Duration().Seconds(),
			metric.WithAttributes(attribute.String("status", string(status))))
	}
}

// TopRejectionReasons tallies distinct rejection messages and returns the
// most frequent ones, capped at limit. Ties break alphabetically so the
// summary is stable.
func TopRejectionReasons(rejected []domain.ValidationResult, limit int) []domain.RejectionReason {
	if len(rejected) == 0 || limit <= 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, result := range rejected {
		for _, reason := range result.Errors {
			counts[reason]++
		}
	}
	reasons := make([]domain.RejectionReason, 0, len(counts))
	for reason, count := range counts {
		reasons = append(reasons, domain.RejectionReason{Reason: reason, Count: count})
	}
	sort.Slice(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		return reasons[i].Reason < reasons[j].Reason
	})
	if len(reasons) > limit {
		reasons = reasons[:limit]
	}
	return reasons
}

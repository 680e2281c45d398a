package services

import (
	"context"
	"log/slog"
	"time"

	"ghgquant/internal/infrastructure"
	"ghgquant/internal/store"
)

// HealthService reports process liveness and readiness for the report
// server.
type HealthService struct {
	archive   *store.Store
	logger    *slog.Logger
	startedAt time.Time
}

// NewHealthService creates a health service. The archive is optional;
// without one readiness reports only the process itself.
func NewHealthService(archive *store.Store, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		archive:   archive,
		logger:    logger.With(slog.String("service", "health")),
		startedAt: time.Now(),
	}
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Check reports overall health: the process plus the archive when
// configured.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:  "healthy",
		Version: infrastructure.ServiceVersion,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
		Checks:  map[string]string{},
	}
	if s.archive != nil {
		if _, err := s.archive.ListRuns(ctx, 1); err != nil {
			status.Status = "degraded"
			status.Checks["archive"] = err.Error()
			s.logger.WarnContext(ctx, "archive health check failed",
				slog.String("error", err.Error()))
		} else {
			status.Checks["archive"] = "ok"
		}
	}
	return status
}

// Liveness reports whether the process is up. It never checks
// dependencies.
func (s *HealthService) Liveness() HealthStatus {
	return HealthStatus{
		Status:  "alive",
		Version: infrastructure.ServiceVersion,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}
}

// Version reports build identity.
func (s *HealthService) Version() map[string]string {
	return map[string]string{
		"service": infrastructure.ServiceName,
		"version": infrastructure.ServiceVersion,
	}
}

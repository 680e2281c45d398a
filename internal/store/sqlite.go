// Package store archives pipeline runs in SQLite so past runs and their
// aggregates stay queryable after the process exits.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "ghgquant/internal/errors"
	"ghgquant/pkg/contracts/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	state_code  TEXT NOT NULL,
	year        INTEGER,
	table_name  TEXT,
	status      TEXT NOT NULL,
	fetched     INTEGER NOT NULL,
	accepted    INTEGER NOT NULL,
	rejected    INTEGER NOT NULL,
	groups_out  INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS aggregates (
	run_id         TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	profile        TEXT NOT NULL,
	state          TEXT,
	county_fips    TEXT,
	sector         TEXT,
	year           INTEGER,
	total_quantity REAL NOT NULL,
	record_count   INTEGER NOT NULL,
	mean           REAL NOT NULL,
	min            REAL NOT NULL,
	max            REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aggregates_run ON aggregates(run_id, profile);

CREATE TABLE IF NOT EXISTS rejections (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	reason TEXT NOT NULL,
	count  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rejections_run ON rejections(run_id);
`

// Store is the SQLite-backed run archive.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the archive at path and applies the
// schema. Foreign keys are enabled so deleting a run removes its rows.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open archive %s", path), err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to apply archive schema", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "run_store")),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun archives a run summary together with its aggregates and
// rejection tallies in one transaction.
func (s *Store) SaveRun(ctx context.Context, summary domain.RunSummary, profiles map[string][]domain.AggregateRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin archive transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, source_id, state_code, year, table_name, status,
			fetched, accepted, rejected, groups_out, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.SourceID, summary.StateCode, summary.Year, summary.Table,
		string(summary.Status), summary.Fetched, summary.Accepted, summary.Rejected,
		summary.Groups, summary.StartedAt.UTC(), summary.FinishedAt.UTC())
	if err != nil {
		return apperrors.NewStorageError("failed to archive run", err)
	}

	aggStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggregates (run_id, profile, state, county_fips, sector, year,
			total_quantity, record_count, mean, min, max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare aggregate insert", err)
	}
	defer aggStmt.Close()

	for profile, rows := range profiles {
		for _, row := range rows {
			_, err := aggStmt.ExecContext(ctx, summary.RunID, profile,
				row.Key.State, row.Key.CountyFIPS, row.Key.Sector, row.Key.Year,
				row.TotalQuantity, row.RecordCount, row.Mean, row.Min, row.Max)
			if err != nil {
				return apperrors.NewStorageError("failed to archive aggregate row", err)
			}
		}
	}

	for _, rejection := range summary.TopRejections {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rejections (run_id, reason, count) VALUES (?, ?, ?)`,
			summary.RunID, rejection.Reason, rejection.Count)
		if err != nil {
			return apperrors.NewStorageError("failed to archive rejection tally", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit archive transaction", err)
	}

	s.logger.InfoContext(ctx, "run archived",
		slog.String("run_id", summary.RunID),
		slog.String("state", summary.StateCode),
		slog.String("status", string(summary.Status)))
	return nil
}

// GetRun loads one archived run summary by id.
func (s *Store) GetRun(ctx context.Context, runID string) (domain.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, source_id, state_code, year, table_name, status,
			fetched, accepted, rejected, groups_out, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID)

	summary, err := scanRun(row)
	if err == sql.ErrNoRows {
		return domain.RunSummary{}, apperrors.NewNotFoundError(fmt.Sprintf("run %s", runID))
	}
	if err != nil {
		return domain.RunSummary{}, apperrors.NewStorageError("failed to load run", err)
	}

	rejections, err := s.loadRejections(ctx, runID)
	if err != nil {
		return domain.RunSummary{}, err
	}
	summary.TopRejections = rejections
	return summary, nil
}

// ListRuns returns the most recent runs, newest first, capped at limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_id, state_code, year, table_name, status,
			fetched, accepted, rejected, groups_out, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list runs", err)
	}
	defer rows.Close()

	var summaries []domain.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan run", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate runs", err)
	}
	return summaries, nil
}

// GetAggregates loads one profile's archived rows for a run, in group-key
// order.
func (s *Store) GetAggregates(ctx context.Context, runID, profile string) ([]domain.AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, county_fips, sector, year, total_quantity, record_count, mean, min, max
		FROM aggregates WHERE run_id = ? AND profile = ?
		ORDER BY state, county_fips, sector, year`, runID, profile)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load aggregates", err)
	}
	defer rows.Close()

	var out []domain.AggregateRow
	for rows.Next() {
		var row domain.AggregateRow
		err := rows.Scan(&row.Key.State, &row.Key.CountyFIPS, &row.Key.Sector, &row.Key.Year,
			&row.TotalQuantity, &row.RecordCount, &row.Mean, &row.Min, &row.Max)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan aggregate row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate aggregates", err)
	}
	if out == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("aggregates for run %s profile %s", runID, profile))
	}
	return out, nil
}

func (s *Store) loadRejections(ctx context.Context, runID string) ([]domain.RejectionReason, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, count FROM rejections WHERE run_id = ? ORDER BY count DESC, reason`, runID)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load rejections", err)
	}
	defer rows.Close()

	var out []domain.RejectionReason
	for rows.Next() {
		var rejection domain.RejectionReason
		if err := rows.Scan(&rejection.Reason, &rejection.Count); err != nil {
			return nil, apperrors.NewStorageError("failed to scan rejection", err)
		}
		out = append(out, rejection)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (domain.RunSummary, error) {
	var summary domain.RunSummary
	var status string
	var started, finished time.Time
	err := row.Scan(&summary.RunID, &summary.SourceID, &summary.StateCode, &summary.Year,
		&summary.Table, &status, &summary.Fetched, &summary.Accepted, &summary.Rejected,
		&summary.Groups, &started, &finished)
	if err != nil {
		return domain.RunSummary{}, err
	}
	summary.Status = domain.RunStatus(status)
	summary.StartedAt = started
	summary.FinishedAt = finished
	return summary, nil
}

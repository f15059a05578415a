package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/group"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RunSummary is one recorded group run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Group        string        `json:"group"`
	Action       string        `json:"action"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	SkippedCount int           `json:"skipped_count"`
}

// DeviceFailure is one recorded per-device failure.
type DeviceFailure struct {
	RunID        string    `json:"run_id"`
	DeviceID     string    `json:"device_id"`
	AttemptedAt  time.Time `json:"attempted_at"`
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
}

// Store persists operation results to SQLite. It implements the executor's
// Recorder contract: recording is best effort and never affects run
// outcomes.
type Store struct {
	db     *database.DB
	logger Logger
}

// NewStore creates a history store over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// RecordRun persists one group run with its per-device results.
// Failures are logged and swallowed per the Recorder contract.
func (s *Store) RecordRun(ctx context.Context, result *group.GroupResult) {
	if err := s.insertRun(ctx, result); err != nil {
		s.logger.Warn("recording group run", "run_id", result.RunID, "error", err)
	}
}

func (s *Store) insertRun(ctx context.Context, result *group.GroupResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO operation_runs
			(run_id, group_name, action, started_at, duration_ms, success_count, failure_count, skipped_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Group, result.Action, result.StartedAt,
		result.Duration.Milliseconds(),
		result.SuccessCount, result.FailureCount, result.SkippedCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, r := range result.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO operation_results
				(run_id, device_id, position, success, skipped, attempted_at, duration_ms,
				 error_kind, error_message, reboot_required, warning)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, r.DeviceID, i, boolInt(r.Success), boolInt(r.Skipped),
			r.AttemptedAt, r.Duration.Milliseconds(),
			string(r.ErrorKind), r.ErrorMessage, boolInt(r.RebootRequired), r.Warning,
		)
		if err != nil {
			return fmt.Errorf("inserting result %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, group_name, action, started_at, duration_ms,
		        success_count, failure_count, skipped_count
		 FROM operation_runs
		 ORDER BY started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var durationMs int64
		if err := rows.Scan(&run.RunID, &run.Group, &run.Action, &run.StartedAt,
			&durationMs, &run.SuccessCount, &run.FailureCount, &run.SkippedCount); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FailuresForDevice returns recent failures for one MAC, newest first.
func (s *Store) FailuresForDevice(ctx context.Context, deviceID string, limit int) ([]DeviceFailure, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, device_id, attempted_at, error_kind, error_message
		 FROM operation_results
		 WHERE device_id = ? AND success = 0 AND skipped = 0
		 ORDER BY attempted_at DESC
		 LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var failures []DeviceFailure
	for rows.Next() {
		var f DeviceFailure
		if err := rows.Scan(&f.RunID, &f.DeviceID, &f.AttemptedAt, &f.ErrorKind, &f.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ResultsForRun returns one run's per-device results in input order.
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]parameter.OperationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, success, skipped, attempted_at, duration_ms,
		        error_kind, error_message, reboot_required, warning
		 FROM operation_results
		 WHERE run_id = ?
		 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var results []parameter.OperationResult
	for rows.Next() {
		var r parameter.OperationResult
		var success, skipped, rebootRequired int
		var durationMs int64
		var kind string
		if err := rows.Scan(&r.DeviceID, &success, &skipped, &r.AttemptedAt, &durationMs,
			&kind, &r.ErrorMessage, &rebootRequired, &r.Warning); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Success = success == 1
		r.Skipped = skipped == 1
		r.RebootRequired = rebootRequired == 1
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.ErrorKind = parameter.ErrorKind(kind)
		results = append(results, r)
	}
	return results, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

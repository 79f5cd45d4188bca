package simulation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// RunRepository persists walk-forward, stress and calibration runs with
// their reports in the state database.
type RunRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{db: db, log: log.With().Str("component", "run_repository").Logger()}
}

// Create registers a new run in the running state.
func (r *RunRepository) Create(runID string, kind domain.RunKind) error {
	_, err := r.db.Conn().Exec(`
		INSERT INTO tuning_runs (run_id, kind, status, created_at, updated_at)
		VALUES (?, ?, ?, datetime('now'), datetime('now'))`,
		runID, string(kind), string(domain.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("create run %s: %w", runID, err)
	}
	return nil
}

// Complete stores the report and marks the run done.
func (r *RunRepository) Complete(runID string, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report for run %s: %w", runID, err)
	}

	res, err := r.db.Conn().Exec(`
		UPDATE tuning_runs
		SET status = ?, report = ?, updated_at = datetime('now')
		WHERE run_id = ?`,
		string(domain.RunStatusDone), string(payload), runID)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete run %s: %w", runID, domain.ErrRunNotFound)
	}
	return nil
}

// Fail marks the run failed and records the failure reason.
func (r *RunRepository) Fail(runID string, cause error) error {
	detail, _ := json.Marshal(map[string]string{"error": cause.Error()})
	res, err := r.db.Conn().Exec(`
		UPDATE tuning_runs
		SET status = ?, report = ?, updated_at = datetime('now')
		WHERE run_id = ?`,
		string(domain.RunStatusFailed), string(detail), runID)
	if err != nil {
		return fmt.Errorf("fail run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail run %s: %w", runID, domain.ErrRunNotFound)
	}
	return nil
}

// Get returns a run with its raw report payload.
func (r *RunRepository) Get(runID string) (*domain.TuningRun, error) {
	row := r.db.Conn().QueryRow(`
		SELECT run_id, kind, status, report, created_at, updated_at
		FROM tuning_runs WHERE run_id = ?`, runID)

	var run domain.TuningRun
	var kind, status string
	var report sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&run.RunID, &kind, &status, &report, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	run.Kind = domain.RunKind(kind)
	run.Status = domain.RunStatus(status)
	if report.Valid {
		run.Report = []byte(report.String)
	}
	run.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	run.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
	return &run, nil
}

// Report unmarshals a completed simulation report.
func (r *RunRepository) Report(runID string) (*domain.SimulationReport, error) {
	run, err := r.Get(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusDone || len(run.Report) == 0 {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, domain.ErrRunNotFound)
	}

	var report domain.SimulationReport
	if err := json.Unmarshal(run.Report, &report); err != nil {
		return nil, fmt.Errorf("decode report for run %s: %w", runID, err)
	}
	report.RunID = runID
	return &report, nil
}

// List returns the most recent runs of a kind, newest first.
func (r *RunRepository) List(kind domain.RunKind, limit int) ([]domain.TuningRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Conn().Query(`
		SELECT run_id, kind, status, report, created_at, updated_at
		FROM tuning_runs WHERE kind = ?
		ORDER BY created_at DESC, run_id DESC LIMIT ?`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s runs: %w", kind, err)
	}
	defer rows.Close()

	var runs []domain.TuningRun
	for rows.Next() {
		var run domain.TuningRun
		var k, status string
		var report sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&run.RunID, &k, &status, &report, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Kind = domain.RunKind(k)
		run.Status = domain.RunStatus(status)
		if report.Valid {
			run.Report = []byte(report.String)
		}
		run.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		run.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/database"
)

// JobHistoryRepository stores job outcomes in the cache database.
type JobHistoryRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewJobHistoryRepository creates a new job history repository
func NewJobHistoryRepository(db *database.DB, log zerolog.Logger) *JobHistoryRepository {
	return &JobHistoryRepository{db: db, log: log.With().Str("component", "job_history").Logger()}
}

// JobRun is one recorded execution.
type JobRun struct {
	JobName    string    `json:"jobName"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Record implements HistoryRecorder.
func (r *JobHistoryRepository) Record(jobName, status, detail string, started, finished time.Time) error {
	_, err := r.db.Conn().Exec(`
		INSERT INTO job_history (job_name, status, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobName, status, detail,
		started.UTC().Format(time.RFC3339),
		finished.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record job history for %s: %w", jobName, err)
	}
	return nil
}

// Recent returns the latest runs of a job, newest first.
func (r *JobHistoryRepository) Recent(jobName string, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Conn().Query(`
		SELECT job_name, status, detail, started_at, finished_at
		FROM job_history WHERE job_name = ?
		ORDER BY finished_at DESC, id DESC LIMIT ?`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("load job history for %s: %w", jobName, err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var run JobRun
		var started, finished string
		if err := rows.Scan(&run.JobName, &run.Status, &run.Detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job history: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

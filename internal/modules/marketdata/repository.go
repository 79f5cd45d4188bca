// Package marketdata provides point-in-time access to price and macro series.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// SeriesRepository persists series observations in the market database.
type SeriesRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSeriesRepository creates a new series repository
func NewSeriesRepository(db *database.DB, log zerolog.Logger) *SeriesRepository {
	return &SeriesRepository{
		db:  db,
		log: log.With().Str("repository", "series").Logger(),
	}
}

// UpsertSeries registers a series id with its native frequency.
func (r *SeriesRepository) UpsertSeries(id string, freq domain.Frequency) error {
	_, err := r.db.Conn().Exec(`
		INSERT INTO series (id, frequency) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET frequency = excluded.frequency`,
		id, string(freq))
	if err != nil {
		return fmt.Errorf("failed to upsert series %s: %w", id, err)
	}
	return nil
}

// UpsertPoints writes observations. Re-ingesting the same (series, date)
// overwrites the value; within one as-of snapshot the data is immutable.
func (r *SeriesRepository) UpsertPoints(id string, points []domain.Point) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin points transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO series_points (series_id, date, value) VALUES (?, ?, ?)
		ON CONFLICT (series_id, date) DO UPDATE SET value = excluded.value`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare points statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(id, domain.DateKey(p.Date), p.Value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert point %s@%s: %w", id, domain.DateKey(p.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit points: %w", err)
	}

	return nil
}

// LoadSeries returns the observations of a series in [from, to], dates
// strictly increasing. Missing dates are real gaps.
func (r *SeriesRepository) LoadSeries(id string, from, to time.Time) (domain.Series, error) {
	freq, err := r.frequency(id)
	if err != nil {
		return domain.Series{}, err
	}

	rows, err := r.db.Conn().Query(`
		SELECT date, value FROM series_points
		WHERE series_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		id, domain.DateKey(from), domain.DateKey(to))
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to load series %s: %w", id, err)
	}
	defer rows.Close()

	series := domain.Series{ID: id, Frequency: freq}
	for rows.Next() {
		var dateStr string
		var value float64
		if err := rows.Scan(&dateStr, &value); err != nil {
			return domain.Series{}, fmt.Errorf("failed to scan series point: %w", err)
		}
		date, err := domain.ParseDate(dateStr)
		if err != nil {
			return domain.Series{}, fmt.Errorf("invalid date %q in series %s: %w", dateStr, id, err)
		}
		series.Points = append(series.Points, domain.Point{Date: date, Value: value})
	}

	if err := rows.Err(); err != nil {
		return domain.Series{}, fmt.Errorf("failed to iterate series %s: %w", id, err)
	}

	return series, nil
}

// frequency looks up the registered frequency, defaulting to daily for
// unregistered ids.
func (r *SeriesRepository) frequency(id string) (domain.Frequency, error) {
	var freq string
	err := r.db.Conn().QueryRow(`SELECT frequency FROM series WHERE id = ?`, id).Scan(&freq)
	if err == sql.ErrNoRows {
		return domain.FrequencyDaily, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up frequency for %s: %w", id, err)
	}
	return domain.Frequency(freq), nil
}

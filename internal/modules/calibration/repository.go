package calibration

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// Repository persists calibration versions in the state database. The
// version history is append-only; the active pointer per asset is a
// single-writer atomic swap.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new calibration repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "calibration").Logger(),
	}
}

// Save stores a version. Saving an existing version id is a no-op, which
// makes re-running a deterministic calibration idempotent.
func (r *Repository) Save(v *domain.CalibrationVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode calibration version: %w", err)
	}

	_, err = r.db.Conn().Exec(`
		INSERT INTO calibration_versions (version_id, asset, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (version_id) DO NOTHING`,
		v.VersionID, string(v.Asset), payload, v.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save calibration version %s: %w", v.VersionID, err)
	}

	return nil
}

// ActiveVersion returns the active version for an asset. Implements the
// macro score engine's WeightProvider contract.
func (r *Repository) ActiveVersion(asset domain.Asset) (*domain.CalibrationVersion, error) {
	var payload []byte
	err := r.db.Conn().QueryRow(`
		SELECT payload FROM calibration_versions
		WHERE asset = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`,
		string(asset)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active calibration for %s: %w", asset, domain.ErrInsufficientCalibration)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active calibration for %s: %w", asset, err)
	}

	return decodeVersion(payload)
}

// Get returns a version by id.
func (r *Repository) Get(versionID string) (*domain.CalibrationVersion, error) {
	var payload []byte
	err := r.db.Conn().QueryRow(`
		SELECT payload FROM calibration_versions WHERE version_id = ?`,
		versionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("calibration version %s: %w", versionID, domain.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration version %s: %w", versionID, err)
	}

	return decodeVersion(payload)
}

// Activate atomically swaps the active pointer for the version's asset.
func (r *Repository) Activate(versionID string) error {
	v, err := r.Get(versionID)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin activation transaction: %w", err)
	}

	if _, err := tx.Exec(`UPDATE calibration_versions SET active = 0 WHERE asset = ?`, string(v.Asset)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear active calibration for %s: %w", v.Asset, err)
	}
	if _, err := tx.Exec(`UPDATE calibration_versions SET active = 1 WHERE version_id = ?`, versionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to activate calibration %s: %w", versionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation of %s: %w", versionID, err)
	}

	r.log.Info().Str("version", versionID).Str("asset", string(v.Asset)).Msg("Calibration activated")
	return nil
}

// EnsureDefault seeds and activates the V1 default version when an asset has
// no active calibration yet. Called at boot.
func (r *Repository) EnsureDefault(asset domain.Asset, horizons []domain.Horizon) error {
	if _, err := r.ActiveVersion(asset); err == nil {
		return nil
	}

	v := DefaultVersion(asset, horizons)
	if err := r.Save(v); err != nil {
		return err
	}
	return r.Activate(v.VersionID)
}

// List returns version summaries for an asset, newest first.
func (r *Repository) List(asset domain.Asset, limit int) ([]*domain.CalibrationVersion, error) {
	rows, err := r.db.Conn().Query(`
		SELECT payload FROM calibration_versions
		WHERE asset = ? ORDER BY created_at DESC LIMIT ?`,
		string(asset), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration versions for %s: %w", asset, err)
	}
	defer rows.Close()

	var versions []*domain.CalibrationVersion
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan calibration version: %w", err)
		}
		v, err := decodeVersion(payload)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func decodeVersion(payload []byte) (*domain.CalibrationVersion, error) {
	var v domain.CalibrationVersion
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to decode calibration version: %w", err)
	}
	return &v, nil
}

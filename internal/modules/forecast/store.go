package forecast

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// Store persists trained models in the state database. Model history is
// append-only; the active pointer per asset is swapped atomically.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new model store
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repository", "forecast_models").Logger(),
	}
}

// Save stores a trained model. Re-saving the same version id is a no-op.
func (s *Store) Save(model *TrainedModel) error {
	payload, err := msgpack.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode trained model: %w", err)
	}

	_, err = s.db.Conn().Exec(`
		INSERT INTO trained_models (version_id, asset, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (version_id) DO NOTHING`,
		model.VersionID, string(model.Asset), payload, model.TrainedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save trained model %s: %w", model.VersionID, err)
	}

	return nil
}

// Active returns the active model for an asset.
func (s *Store) Active(asset domain.Asset) (*TrainedModel, error) {
	var payload []byte
	err := s.db.Conn().QueryRow(`
		SELECT payload FROM trained_models
		WHERE asset = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`,
		string(asset)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active model for %s: %w", asset, domain.ErrInsufficientData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active model for %s: %w", asset, err)
	}

	var model TrainedModel
	if err := msgpack.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("failed to decode trained model: %w", err)
	}
	return &model, nil
}

// Activate atomically swaps the active model pointer for the asset owning
// the version.
func (s *Store) Activate(versionID string) error {
	var asset string
	err := s.db.Conn().QueryRow(`
		SELECT asset FROM trained_models WHERE version_id = ?`,
		versionID).Scan(&asset)
	if err == sql.ErrNoRows {
		return fmt.Errorf("trained model %s: %w", versionID, domain.ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up trained model %s: %w", versionID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin model activation: %w", err)
	}

	if _, err := tx.Exec(`UPDATE trained_models SET active = 0 WHERE asset = ?`, asset); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear active model for %s: %w", asset, err)
	}
	if _, err := tx.Exec(`UPDATE trained_models SET active = 1 WHERE version_id = ?`, versionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to activate model %s: %w", versionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model activation %s: %w", versionID, err)
	}

	s.log.Info().Str("version", versionID).Str("asset", asset).Msg("Forecast model activated")
	return nil
}

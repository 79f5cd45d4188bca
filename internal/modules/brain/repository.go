package brain

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// DecisionRepository persists decision snapshots keyed by (asset, as_of).
type DecisionRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *database.DB, log zerolog.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:  db,
		log: log.With().Str("repository", "decisions").Logger(),
	}
}

// Save upserts a decision snapshot. Re-deciding the same (asset, date)
// replaces the snapshot: the pipeline is deterministic, so a replay with
// identical inputs writes identical content.
func (r *DecisionRepository) Save(decision *domain.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	_, err = r.db.Conn().Exec(`
		INSERT INTO decisions (asset, as_of, inputs_hash, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (asset, as_of) DO UPDATE SET
			inputs_hash = excluded.inputs_hash,
			payload = excluded.payload`,
		string(decision.Asset), domain.DateKey(decision.AsOf),
		decision.InputsHash, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save decision for %s@%s: %w",
			decision.Asset, domain.DateKey(decision.AsOf), err)
	}

	return nil
}

// Get returns the decision for an (asset, date).
func (r *DecisionRepository) Get(asset domain.Asset, asOf time.Time) (*domain.Decision, error) {
	var payload string
	err := r.db.Conn().QueryRow(`
		SELECT payload FROM decisions WHERE asset = ? AND as_of = ?`,
		string(asset), domain.DateKey(asOf)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision %s@%s: %w", asset, domain.DateKey(asOf), domain.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load decision: %w", err)
	}

	var decision domain.Decision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision payload: %w", err)
	}
	return &decision, nil
}

// History returns the most recent decisions for an asset, newest first.
func (r *DecisionRepository) History(asset domain.Asset, limit int) ([]*domain.Decision, error) {
	rows, err := r.db.Conn().Query(`
		SELECT payload FROM decisions WHERE asset = ?
		ORDER BY as_of DESC LIMIT ?`, string(asset), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load decision history for %s: %w", asset, err)
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		var decision domain.Decision
		if err := json.Unmarshal([]byte(payload), &decision); err != nil {
			return nil, fmt.Errorf("failed to decode decision payload: %w", err)
		}
		decisions = append(decisions, &decision)
	}

	return decisions, rows.Err()
}

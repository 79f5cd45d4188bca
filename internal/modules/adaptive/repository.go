package adaptive

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// Repository persists adaptive parameter sets in the state database. The
// active row per asset is a singleton; history is append-only.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new adaptive params repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "adaptive_repository").Logger()}
}

// HistoryEntry is one appended parameter change.
type HistoryEntry struct {
	Params    Params    `json:"params"`
	CreatedAt time.Time `json:"createdAt"`
}

// Active returns the active parameter set for an asset.
func (r *Repository) Active(asset domain.Asset) (Params, error) {
	row := r.db.Conn().QueryRow(`
		SELECT payload FROM adaptive_active_params WHERE asset = ?`, string(asset))

	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Params{}, fmt.Errorf("no active params for %s: %w", asset, domain.ErrInsufficientData)
	}
	if err != nil {
		return Params{}, fmt.Errorf("load active params for %s: %w", asset, err)
	}

	var p Params
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return Params{}, fmt.Errorf("decode active params for %s: %w", asset, err)
	}
	return p, nil
}

// SetActive replaces the active set and appends the change to the history
// in one transaction.
func (r *Repository) SetActive(p Params) error {
	if !p.Source.Valid() {
		return fmt.Errorf("%w: unknown params source %q", domain.ErrValidation, p.Source)
	}
	if p.VersionID == "" {
		return fmt.Errorf("%w: params without version id", domain.ErrValidation)
	}

	payload, err := msgpack.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode params %s: %w", p.VersionID, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin params swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO adaptive_active_params (asset, version_id, source, payload, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (asset) DO UPDATE SET
			version_id = excluded.version_id,
			source     = excluded.source,
			payload    = excluded.payload,
			updated_at = excluded.updated_at`,
		string(p.Asset), p.VersionID, string(p.Source), payload)
	if err != nil {
		return fmt.Errorf("swap active params for %s: %w", p.Asset, err)
	}

	_, err = tx.Exec(`
		INSERT INTO adaptive_param_history (asset, version_id, source, payload)
		VALUES (?, ?, ?, ?)`,
		string(p.Asset), p.VersionID, string(p.Source), payload)
	if err != nil {
		return fmt.Errorf("append params history for %s: %w", p.Asset, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit params swap: %w", err)
	}

	r.log.Info().
		Str("asset", string(p.Asset)).
		Str("versionId", p.VersionID).
		Str("source", string(p.Source)).
		Msg("Adaptive params activated")
	return nil
}

// EnsureDefault seeds the default parameter set when an asset has none.
func (r *Repository) EnsureDefault(asset domain.Asset) (Params, error) {
	p, err := r.Active(asset)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrInsufficientData) {
		return Params{}, err
	}

	p = DefaultParams(asset)
	if err := r.SetActive(p); err != nil {
		return Params{}, err
	}
	return p, nil
}

// History returns the most recent parameter changes, newest first.
func (r *Repository) History(asset domain.Asset, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Conn().Query(`
		SELECT payload, created_at FROM adaptive_param_history
		WHERE asset = ? ORDER BY id DESC LIMIT ?`, string(asset), limit)
	if err != nil {
		return nil, fmt.Errorf("load params history for %s: %w", asset, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var payload []byte
		var createdAt string
		if err := rows.Scan(&payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan params history: %w", err)
		}
		var entry HistoryEntry
		if err := msgpack.Unmarshal(payload, &entry.Params); err != nil {
			return nil, fmt.Errorf("decode params history: %w", err)
		}
		entry.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

package regime

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

// Repository persists the append-only regime history and the per-scope
// memory state used to re-hydrate the engine between decisions.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new regime repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "regime").Logger(),
	}
}

// Append stores one regime observation. The (asset, date) uniqueness
// constraint silently rejects duplicates so replays stay idempotent.
func (r *Repository) Append(state domain.RegimeState) error {
	posterior, err := json.Marshal(state.Posterior)
	if err != nil {
		return fmt.Errorf("failed to encode regime posterior: %w", err)
	}

	var hint sql.NullString
	if state.TransitionHint != nil {
		hint = sql.NullString{String: string(*state.TransitionHint), Valid: true}
	}

	_, err = r.db.Conn().Exec(`
		INSERT INTO regime_state (asset, date, regime, posterior, persistence, transition_hint, changes_30d, stability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset, date) DO NOTHING`,
		string(state.Asset), domain.DateKey(state.Date), string(state.Regime),
		string(posterior), state.Persistence, hint, state.Changes30D, state.Stability)
	if err != nil {
		return fmt.Errorf("failed to append regime state for %s@%s: %w",
			state.Asset, domain.DateKey(state.Date), err)
	}

	return nil
}

// Latest returns the most recent observation for an asset on or before asOf,
// or nil when none exists. The date bound keeps historical replays from
// seeing states written after their as-of date.
func (r *Repository) Latest(asset domain.Asset, asOf time.Time) (*domain.RegimeState, error) {
	row := r.db.Conn().QueryRow(`
		SELECT asset, date, regime, posterior, persistence, transition_hint, changes_30d, stability
		FROM regime_state WHERE asset = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, string(asset), domain.DateKey(asOf))

	state, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest regime for %s: %w", asset, err)
	}
	return state, nil
}

// Recent returns observations on or after since, oldest first. Implements the
// engine's History contract.
func (r *Repository) Recent(asset domain.Asset, since time.Time) ([]domain.RegimeState, error) {
	rows, err := r.db.Conn().Query(`
		SELECT asset, date, regime, posterior, persistence, transition_hint, changes_30d, stability
		FROM regime_state WHERE asset = ? AND date >= ?
		ORDER BY date ASC`, string(asset), domain.DateKey(since))
	if err != nil {
		return nil, fmt.Errorf("failed to load regime history for %s: %w", asset, err)
	}
	defer rows.Close()

	var states []domain.RegimeState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regime state: %w", err)
		}
		states = append(states, *state)
	}

	return states, rows.Err()
}

// SaveMemory upserts the per-scope memory snapshot.
func (r *Repository) SaveMemory(scope string, regime domain.MacroRegime, daysInState, flips30d int, stability float64) error {
	_, err := r.db.Conn().Exec(`
		INSERT INTO regime_memory_state (scope, regime, days_in_state, flips_30d, stability, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope) DO UPDATE SET
			regime = excluded.regime,
			days_in_state = excluded.days_in_state,
			flips_30d = excluded.flips_30d,
			stability = excluded.stability,
			updated_at = excluded.updated_at`,
		scope, string(regime), daysInState, flips30d, stability, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save regime memory for scope %s: %w", scope, err)
	}
	return nil
}

// Memory returns the per-scope memory snapshot, or nil when none exists.
func (r *Repository) Memory(scope string) (*domain.MacroRegime, int, error) {
	var regime string
	var daysInState int
	err := r.db.Conn().QueryRow(`
		SELECT regime, days_in_state FROM regime_memory_state WHERE scope = ?`,
		scope).Scan(&regime, &daysInState)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load regime memory for scope %s: %w", scope, err)
	}

	m := domain.MacroRegime(regime)
	return &m, daysInState, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*domain.RegimeState, error) {
	var state domain.RegimeState
	var asset, dateKey, regime, posterior string
	var hint sql.NullString

	if err := row.Scan(&asset, &dateKey, &regime, &posterior,
		&state.Persistence, &hint, &state.Changes30D, &state.Stability); err != nil {
		return nil, err
	}

	date, err := domain.ParseDate(dateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid regime state date %q: %w", dateKey, err)
	}

	state.Asset = domain.Asset(asset)
	state.Date = date
	state.Regime = domain.MacroRegime(regime)
	if err := json.Unmarshal([]byte(posterior), &state.Posterior); err != nil {
		return nil, fmt.Errorf("invalid regime posterior payload: %w", err)
	}
	if hint.Valid {
		h := domain.MacroRegime(hint.String)
		state.TransitionHint = &h
	}

	return &state, nil
}

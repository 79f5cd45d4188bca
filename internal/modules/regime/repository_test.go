package regime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:regime_test?mode=memory&cache=shared",
		Profile: database.ProfileHistory,
		Name:    "state",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS regime_state (
			asset           TEXT NOT NULL,
			date            TEXT NOT NULL,
			regime          TEXT NOT NULL,
			posterior       TEXT NOT NULL,
			persistence     REAL NOT NULL,
			transition_hint TEXT,
			changes_30d     INTEGER NOT NULL DEFAULT 0,
			stability       REAL NOT NULL DEFAULT 1.0,
			created_at      TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (asset, date)
		);
		CREATE TABLE IF NOT EXISTS regime_memory_state (
			scope         TEXT PRIMARY KEY,
			regime        TEXT NOT NULL,
			days_in_state INTEGER NOT NULL DEFAULT 0,
			flips_30d     INTEGER NOT NULL DEFAULT 0,
			stability     REAL NOT NULL DEFAULT 1.0,
			updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
		);
		DELETE FROM regime_state;
		DELETE FROM regime_memory_state;`)
	require.NoError(t, err)
	return db
}

func sampleState(dateKey string, regime domain.MacroRegime) domain.RegimeState {
	return domain.RegimeState{
		Asset:  domain.AssetSPX,
		Date:   date(dateKey),
		Regime: regime,
		Posterior: map[domain.MacroRegime]float64{
			regime: 1.0,
		},
		Persistence: Persistence(regime),
		Stability:   1.0,
	}
}

func TestRepository_AppendAndLatest(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Append(sampleState("2024-06-27", domain.RegimeNeutral)))
	require.NoError(t, repo.Append(sampleState("2024-06-28", domain.RegimeEasing)))

	latest, err := repo.Latest(domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.RegimeEasing, latest.Regime)
	assert.Equal(t, date("2024-06-28"), latest.Date)
	assert.InDelta(t, 1.0, latest.Posterior[domain.RegimeEasing], 1e-9)
}

func TestRepository_LatestBoundedByAsOf(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Append(sampleState("2024-01-15", domain.RegimeNeutral)))
	require.NoError(t, repo.Append(sampleState("2024-06-01", domain.RegimeStress)))

	// A replay at an earlier date must never see the later observation
	latest, err := repo.Latest(domain.AssetSPX, date("2024-01-20"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.RegimeNeutral, latest.Regime)
	assert.Equal(t, date("2024-01-15"), latest.Date)

	// Before the first observation there is no prior at all
	latest, err = repo.Latest(domain.AssetSPX, date("2024-01-01"))
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRepository_DuplicateDateRejectedSilently(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Append(sampleState("2024-06-28", domain.RegimeEasing)))
	// Replay with a different regime must not overwrite the history
	require.NoError(t, repo.Append(sampleState("2024-06-28", domain.RegimeStress)))

	latest, err := repo.Latest(domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeEasing, latest.Regime)
}

func TestRepository_RecentWindow(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Append(sampleState("2024-05-01", domain.RegimeTightening)))
	require.NoError(t, repo.Append(sampleState("2024-06-10", domain.RegimeNeutral)))
	require.NoError(t, repo.Append(sampleState("2024-06-24", domain.RegimeEasing)))

	states, err := repo.Recent(domain.AssetSPX, date("2024-06-01"))
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, domain.RegimeNeutral, states[0].Regime)
	assert.Equal(t, domain.RegimeEasing, states[1].Regime)
}

func TestRepository_LatestEmptyHistory(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	latest, err := repo.Latest(domain.AssetBTC, date("2024-06-28"))
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRepository_MemoryRoundTrip(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.SaveMemory("SPX", domain.RegimeEasing, 12, 1, 0.8))
	require.NoError(t, repo.SaveMemory("SPX", domain.RegimeNeutral, 1, 2, 0.6))

	regime, days, err := repo.Memory("SPX")
	require.NoError(t, err)
	require.NotNil(t, regime)
	assert.Equal(t, domain.RegimeNeutral, *regime)
	assert.Equal(t, 1, days)

	missing, _, err := repo.Memory("BTC")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_TransitionHintPersists(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	hint := domain.RegimeNeutral
	state := sampleState("2024-06-28", domain.RegimeNeutralMixed)
	state.TransitionHint = &hint
	require.NoError(t, repo.Append(state))

	latest, err := repo.Latest(domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)
	require.NotNil(t, latest.TransitionHint)
	assert.Equal(t, domain.RegimeNeutral, *latest.TransitionHint)
}

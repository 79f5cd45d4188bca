package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/database"
)

// InitializeDatabases initializes the three databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. market.db - ingested series observations
	marketDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/market.db",
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize market database: %w", err)
	}
	container.MarketDB = marketDB

	// 2. state.db - decisions, regime timeline, calibrations, trained models
	stateDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/state.db",
		Profile: database.ProfileHistory, // maximum safety for the append-only history
		Name:    "state",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	container.StateDB = stateDB

	// 3. cache.db - job history and other ephemeral data
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache, // maximum speed for ephemeral data
		Name:    "cache",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Apply schemas (single source of truth)
	for _, db := range []*database.DB{marketDB, stateDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/aristath/macrobrain/internal/domain"
)

// Objective selects the calibration business objective.
type Objective string

const (
	ObjectiveHitRate Objective = "HIT_RATE"
	ObjectiveMAE     Objective = "MAE"
	ObjectiveRMSE    Objective = "RMSE"
)

// SearchMethod selects the calibration search strategy.
type SearchMethod string

const (
	SearchGrid   SearchMethod = "grid"
	SearchRandom SearchMethod = "random"
)

// CalibrationConfig enumerates the recognized calibration options.
type CalibrationConfig struct {
	Objective  Objective
	PerHorizon bool
	AsOf       bool // apply publication lags during evaluation
	Method     SearchMethod
	Trials     int
	Seed       int64
	StepDays   int

	// Weight constraints
	SumWeights float64
	MaxWeight  float64
	MinWeight  float64
}

// ForecastConfig enumerates the recognized forecaster options.
type ForecastConfig struct {
	MinSamplesPerExpert int
	Smoothing           float64
	Seed                int64
}

// S3Config holds the optional report archive destination.
type S3Config struct {
	Enabled bool
	Bucket  string
	Prefix  string
	Region  string
}

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for all databases (always absolute)
	LogLevel      string
	Port          int
	DevMode       bool
	MinCashFloor  float64
	OptimizerMode domain.OptimizerMode
	Horizons      []domain.Horizon
	Calibration   CalibrationConfig
	Forecast      ForecastConfig
	Archive       S3Config
	PresetsDir    string // stress preset yaml files
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. BRAIN_DATA_DIR environment variable
	// 2. default ./data
	// Always resolved to an absolute path, created if missing.
	dataDir := getEnv("BRAIN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	horizons, err := parseHorizons(getEnv("BRAIN_HORIZONS", "30D,90D,180D,365D"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("BRAIN_PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MinCashFloor:  getEnvAsFloat("BRAIN_MIN_CASH_FLOOR", 0.05),
		OptimizerMode: domain.OptimizerMode(getEnv("BRAIN_OPTIMIZER_MODE", "preview")),
		Horizons:      horizons,
		Calibration: CalibrationConfig{
			Objective:  Objective(getEnv("CALIBRATION_OBJECTIVE", string(ObjectiveHitRate))),
			PerHorizon: getEnvAsBool("CALIBRATION_PER_HORIZON", true),
			AsOf:       getEnvAsBool("CALIBRATION_AS_OF", true),
			Method:     SearchMethod(getEnv("CALIBRATION_SEARCH_METHOD", string(SearchRandom))),
			Trials:     getEnvAsInt("CALIBRATION_TRIALS", 500),
			Seed:       int64(getEnvAsInt("CALIBRATION_SEED", 42)),
			StepDays:   getEnvAsInt("CALIBRATION_STEP_DAYS", 7),
			SumWeights: getEnvAsFloat("CALIBRATION_SUM_WEIGHTS", 1.0),
			MaxWeight:  getEnvAsFloat("CALIBRATION_MAX_WEIGHT", 0.40),
			MinWeight:  getEnvAsFloat("CALIBRATION_MIN_WEIGHT", 0.02),
		},
		Forecast: ForecastConfig{
			MinSamplesPerExpert: getEnvAsInt("FORECAST_MIN_SAMPLES_PER_EXPERT", 60),
			Smoothing:           getEnvAsFloat("FORECAST_SMOOTHING", 0.25),
			Seed:                int64(getEnvAsInt("FORECAST_SEED", 42)),
		},
		Archive: S3Config{
			Enabled: getEnvAsBool("ARCHIVE_S3_ENABLED", false),
			Bucket:  getEnv("ARCHIVE_S3_BUCKET", ""),
			Prefix:  getEnv("ARCHIVE_S3_PREFIX", "macrobrain/reports"),
			Region:  getEnv("ARCHIVE_S3_REGION", "eu-central-1"),
		},
		PresetsDir: getEnv("BRAIN_PRESETS_DIR", filepath.Join(absDataDir, "presets")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects unrecognized enum values early, at boot.
func (c *Config) validate() error {
	switch c.Calibration.Objective {
	case ObjectiveHitRate, ObjectiveMAE, ObjectiveRMSE:
	default:
		return fmt.Errorf("unknown calibration objective: %s", c.Calibration.Objective)
	}

	switch c.Calibration.Method {
	case SearchGrid, SearchRandom:
	default:
		return fmt.Errorf("unknown calibration search method: %s", c.Calibration.Method)
	}

	switch c.OptimizerMode {
	case domain.OptimizerOff, domain.OptimizerPreview, domain.OptimizerOn:
	default:
		return fmt.Errorf("unknown optimizer mode: %s", c.OptimizerMode)
	}

	if c.MinCashFloor < 0 || c.MinCashFloor > 0.5 {
		return fmt.Errorf("min cash floor %.2f out of range [0, 0.5]", c.MinCashFloor)
	}

	return nil
}

// parseHorizons parses a comma-separated horizon list.
func parseHorizons(raw string) ([]domain.Horizon, error) {
	parts := strings.Split(raw, ",")
	horizons := make([]domain.Horizon, 0, len(parts))
	for _, p := range parts {
		h := domain.Horizon(strings.TrimSpace(p))
		if !h.Valid() {
			return nil, fmt.Errorf("unknown horizon: %s", p)
		}
		horizons = append(horizons, h)
	}
	if len(horizons) == 0 {
		return nil, fmt.Errorf("no horizons configured")
	}
	return horizons, nil
}

// getEnv retrieves an environment variable or returns the fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as int or returns the fallback
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as float64 or returns the fallback
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as bool or returns the fallback
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// Package server exposes the decision engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
	"github.com/aristath/macrobrain/internal/modules/stress"
)

// Pipeline runs one full decision.
type Pipeline interface {
	Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error)
}

// WorldSource assembles the world state without deciding.
type WorldSource interface {
	Assemble(ctx context.Context, asset domain.Asset, asOf time.Time) (*domain.WorldState, map[domain.Horizon]domain.MacroScore, error)
}

// ForecastSource produces forecasts for an assembled world.
type ForecastSource interface {
	Forecast(world *domain.WorldState, asOf time.Time) domain.ForecastOutcome
}

// Optimizer runs the small-delta wrapper directly.
type Optimizer interface {
	Optimize(current domain.Allocation, posture domain.Posture, scenario domain.Scenario, world *domain.WorldState, fc domain.ForecastOutcome) domain.OptimizerOutput
}

// DecisionStore reads persisted decisions.
type DecisionStore interface {
	Get(asset domain.Asset, asOf time.Time) (*domain.Decision, error)
	History(asset domain.Asset, limit int) ([]*domain.Decision, error)
}

// Simulator starts walk-forward runs.
type Simulator interface {
	Run(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationReport, error)
}

// RunStore reads and writes tuning runs.
type RunStore interface {
	Create(runID string, kind domain.RunKind) error
	Complete(runID string, report any) error
	Fail(runID string, cause error) error
	Get(runID string) (*domain.TuningRun, error)
	Report(runID string) (*domain.SimulationReport, error)
}

// StressRunner replays presets.
type StressRunner interface {
	Run(ctx context.Context, preset stress.Preset, asset domain.Asset, asOf time.Time) (*stress.Result, error)
}

// Calibrator runs the weight search.
type Calibrator interface {
	Run(req calibration.Request) (*domain.CalibrationVersion, error)
}

// CalibrationStore reads and activates calibration versions.
type CalibrationStore interface {
	ActiveVersion(asset domain.Asset) (*domain.CalibrationVersion, error)
	Save(v *domain.CalibrationVersion) error
	Activate(versionID string) error
}

// Promoter evaluates candidates against the gates.
type Promoter interface {
	Promote(report *domain.SimulationReport, versionID string, lastCalibration time.Time) (domain.PromotionVerdict, error)
}

// GateEvaluator runs the promotion gates without activating anything.
type GateEvaluator interface {
	Evaluate(report *domain.SimulationReport, lastCalibration time.Time, now time.Time) domain.PromotionVerdict
}

// ReportArchiver uploads finished reports to long-term storage.
type ReportArchiver interface {
	Upload(ctx context.Context, kind, runID string, report any) error
}

// Deps bundles everything the handlers need.
type Deps struct {
	Pipeline    Pipeline
	Worlds      WorldSource
	Forecasts   ForecastSource
	Optimizer   Optimizer
	Decisions   DecisionStore
	Simulator   Simulator
	Runs        RunStore
	Stress      StressRunner
	Presets     []stress.Preset
	Calibrator  Calibrator
	Calibration CalibrationStore
	Promoter    Promoter
	Gate        GateEvaluator
	Archive     ReportArchiver
	Cache       *cache.Cache
	Started     time.Time
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	deps   Deps
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(port int, deps Deps, devMode bool, log zerolog.Logger) *Server {
	if deps.Started.IsZero() {
		deps.Started = time.Now().UTC()
	}
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(devMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/decision", s.handleDecision)
		r.Get("/world", s.handleWorld)
		r.Get("/forecast", s.handleForecast)
		r.Get("/compare", s.handleCompare)
		r.Get("/compare/timeline", s.handleCompareTimeline)

		r.Post("/sim/run", s.handleSimRun)
		r.Get("/sim/report", s.handleSimReport)

		r.Post("/stress/run", s.handleStressRun)
		r.Get("/stress/status", s.handleStressStatus)
		r.Get("/stress/presets", s.handleStressPresets)

		r.Post("/optimizer/preview", s.handleOptimizerPreview)
		r.Post("/optimizer/simulate", s.handleOptimizerSimulate)

		r.Post("/calibration/run", s.handleCalibrationRun)
		r.Get("/calibration/active", s.handleCalibrationActive)
		r.Post("/calibration/promote", s.handleCalibrationPromote)
		r.Get("/promotion/recommendation", s.handlePromotionRecommendation)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.handleSystemHealth)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
	"github.com/aristath/macrobrain/internal/modules/simulation"
	"github.com/aristath/macrobrain/internal/modules/stress"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "macrobrain",
	})
}

// handleDecision runs (or serves from cache) one full decision.
// GET /api/decision?asset=SPX&asOf=2024-06-28&posture=NEUTRAL
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	posture, err := queryPosture(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	key := cache.Key("decision:"+string(asset)+":"+string(posture), domain.DateKey(asOf))
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(key); ok {
			s.writeJSON(w, http.StatusOK, map[string]any{"decision": cached, "cached": true})
			return
		}
	}

	decision, err := s.deps.Pipeline.Decide(r.Context(), asset, asOf, posture)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Set(key, decision, cache.DefaultTTL)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decision": decision})
}

// handleWorld assembles the world state without deciding.
// GET /api/world?asset=SPX&asOf=2024-06-28
func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	world, scores, err := s.deps.Worlds.Assemble(r.Context(), asset, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"world":         world,
		"macroHorizons": scores,
	})
}

// handleForecast returns the quantile forecast for an assembled world.
// GET /api/forecast?asset=SPX&asOf=2024-06-28
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	world, _, err := s.deps.Worlds.Assemble(r.Context(), asset, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"forecast": s.deps.Forecasts.Forecast(world, asOf),
	})
}

// handleCompare runs a decision and sets it against the always-long baseline.
// GET /api/compare?asset=SPX&asOf=2024-06-28
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	decision, err := s.deps.Pipeline.Decide(r.Context(), asset, asOf, domain.PostureNeutral)
	if err != nil {
		s.writeError(w, err)
		return
	}

	baseline := simulation.Baseline()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"asset":             asset,
		"asOf":              domain.DateKey(asOf),
		"scenario":          decision.Scenario.Name,
		"brainOn":           decision.Allocations,
		"brainOff":          baseline,
		"overrideIntensity": allocationDistance(decision.Allocations, baseline),
		"evidence":          decision.Evidence,
	})
}

// handleCompareTimeline replays persisted decisions over a stepped window.
// GET /api/compare/timeline?asset=SPX&from=2024-01-01&to=2024-06-28&step=14
func (s *Server) handleCompareTimeline(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeError(w, err)
		return
	}
	step := queryInt(r, "step", 14)
	if step <= 0 || !to.After(from) {
		s.writeError(w, domain.ErrValidation)
		return
	}

	baseline := simulation.Baseline()
	type point struct {
		AsOf              string            `json:"asOf"`
		Scenario          domain.Scenario   `json:"scenario"`
		BrainOn           domain.Allocation `json:"brainOn"`
		OverrideIntensity float64           `json:"overrideIntensity"`
	}
	timeline := []point{}
	for d := domain.Midnight(from); !d.After(domain.Midnight(to)); d = d.AddDate(0, 0, step) {
		decision, err := s.deps.Decisions.Get(asset, d)
		if err != nil {
			// dates without a persisted decision are simply absent
			continue
		}
		timeline = append(timeline, point{
			AsOf:              domain.DateKey(d),
			Scenario:          decision.Scenario.Name,
			BrainOn:           decision.Allocations,
			OverrideIntensity: allocationDistance(decision.Allocations, baseline),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"asset":    asset,
		"brainOff": baseline,
		"timeline": timeline,
	})
}

type simRunRequest struct {
	Asset    domain.Asset     `json:"asset"`
	Start    string           `json:"start"`
	End      string           `json:"end"`
	StepDays int              `json:"stepDays"`
	Horizons []domain.Horizon `json:"horizons"`
}

// handleSimRun starts a walk-forward run in the background.
// POST /api/sim/run
func (s *Server) handleSimRun(w http.ResponseWriter, r *http.Request) {
	var body simRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	start, err := domain.ParseDate(body.Start)
	if err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	end, err := domain.ParseDate(body.End)
	if err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	asset := body.Asset
	if asset == "" {
		asset = domain.AssetSPX
	}

	runID := uuid.New().String()
	if err := s.deps.Runs.Create(runID, domain.RunKindSimulation); err != nil {
		s.writeError(w, err)
		return
	}

	req := domain.SimulationRequest{
		Asset:    asset,
		Start:    start,
		End:      end,
		StepDays: body.StepDays,
		Horizons: body.Horizons,
	}

	// The run outlives the request; completion lands in the run store.
	go func() {
		report, err := s.deps.Simulator.Run(context.Background(), req)
		if err != nil {
			s.log.Error().Err(err).Str("runId", runID).Msg("Walk-forward run failed")
			_ = s.deps.Runs.Fail(runID, err)
			return
		}
		report.RunID = runID
		if err := s.deps.Runs.Complete(runID, report); err != nil {
			s.log.Error().Err(err).Str("runId", runID).Msg("Failed to store run report")
			return
		}
		if s.deps.Archive != nil {
			if err := s.deps.Archive.Upload(context.Background(), string(domain.RunKindSimulation), runID, report); err != nil {
				s.log.Warn().Err(err).Str("runId", runID).Msg("Failed to archive run report")
			}
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  runID,
		"status": domain.RunStatusRunning,
	})
}

// handleSimReport returns the status and, once done, the report of a run.
// GET /api/sim/report?id=<runId>
func (s *Server) handleSimReport(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("id")
	if runID == "" {
		s.writeError(w, domain.ErrValidation)
		return
	}

	run, err := s.deps.Runs.Get(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := map[string]any{
		"runId":  run.RunID,
		"status": run.Status,
	}
	if run.Status == domain.RunStatusDone || run.Status == domain.RunStatusFailed {
		response["report"] = json.RawMessage(run.Report)
	}
	s.writeJSON(w, http.StatusOK, response)
}

type stressRunRequest struct {
	Preset string       `json:"preset"`
	Asset  domain.Asset `json:"asset"`
	AsOf   string       `json:"asOf"`
}

// handleStressRun replays one preset through the pipeline.
// POST /api/stress/run
func (s *Server) handleStressRun(w http.ResponseWriter, r *http.Request) {
	var body stressRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	preset, err := stress.FindPreset(s.deps.Presets, body.Preset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asset := body.Asset
	if asset == "" {
		asset = domain.AssetSPX
	}
	asOf := domain.Midnight(time.Now().UTC())
	if body.AsOf != "" {
		if asOf, err = domain.ParseDate(body.AsOf); err != nil {
			s.writeError(w, domain.ErrValidation)
			return
		}
	}

	result, err := s.deps.Stress.Run(r.Context(), preset, asset, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleStressStatus returns a stored stress run.
// GET /api/stress/status?id=<runId>
func (s *Server) handleStressStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("id")
	if runID == "" {
		s.writeError(w, domain.ErrValidation)
		return
	}
	run, err := s.deps.Runs.Get(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	response := map[string]any{
		"runId":  run.RunID,
		"status": run.Status,
	}
	if len(run.Report) > 0 {
		response["result"] = json.RawMessage(run.Report)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleStressPresets lists the loaded preset catalog.
// GET /api/stress/presets
func (s *Server) handleStressPresets(w http.ResponseWriter, r *http.Request) {
	type presetInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Shocks      int    `json:"shocks"`
	}
	presets := make([]presetInfo, 0, len(s.deps.Presets))
	for _, p := range s.deps.Presets {
		presets = append(presets, presetInfo{Name: p.Name, Description: p.Description, Shocks: len(p.Shocks)})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

type optimizerRequest struct {
	Asset   domain.Asset       `json:"asset"`
	AsOf    string             `json:"asOf"`
	Posture domain.Posture     `json:"posture"`
	Current *domain.Allocation `json:"current"`
}

// handleOptimizerPreview computes small-delta tilts for a caller-supplied
// allocation without applying them.
// POST /api/optimizer/preview
func (s *Server) handleOptimizerPreview(w http.ResponseWriter, r *http.Request) {
	body, decision, err := s.optimizerContext(w, r)
	if err != nil {
		return
	}

	out := s.deps.Optimizer.Optimize(*body.Current, body.Posture, decision.Scenario.Name, &decision.World, decision.Forecast)
	out.Mode = domain.OptimizerPreview
	out.Applied = false
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scenario":  decision.Scenario.Name,
		"optimizer": out,
	})
}

// handleOptimizerSimulate evaluates the same allocation under every posture
// so the caller can see how the bounds tighten.
// POST /api/optimizer/simulate
func (s *Server) handleOptimizerSimulate(w http.ResponseWriter, r *http.Request) {
	body, decision, err := s.optimizerContext(w, r)
	if err != nil {
		return
	}

	results := map[domain.Posture]domain.OptimizerOutput{}
	for _, posture := range []domain.Posture{domain.PostureOffensive, domain.PostureNeutral, domain.PostureDefensive} {
		out := s.deps.Optimizer.Optimize(*body.Current, posture, decision.Scenario.Name, &decision.World, decision.Forecast)
		out.Mode = domain.OptimizerPreview
		out.Applied = false
		results[posture] = out
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scenario": decision.Scenario.Name,
		"postures": results,
	})
}

// optimizerContext parses an optimizer request and runs the pipeline the
// wrapper needs for world state and forecasts. Errors are already written.
func (s *Server) optimizerContext(w http.ResponseWriter, r *http.Request) (*optimizerRequest, *domain.Decision, error) {
	var body optimizerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.ErrValidation)
		return nil, nil, err
	}
	if body.Posture == "" {
		body.Posture = domain.PostureNeutral
	}
	if !validPosture(body.Posture) {
		s.writeError(w, domain.ErrValidation)
		return nil, nil, domain.ErrValidation
	}
	asset := body.Asset
	if asset == "" {
		asset = domain.AssetSPX
	}
	asOf := domain.Midnight(time.Now().UTC())
	if body.AsOf != "" {
		var err error
		if asOf, err = domain.ParseDate(body.AsOf); err != nil {
			s.writeError(w, domain.ErrValidation)
			return nil, nil, err
		}
	}

	decision, err := s.deps.Pipeline.Decide(r.Context(), asset, asOf, body.Posture)
	if err != nil {
		s.writeError(w, err)
		return nil, nil, err
	}
	if body.Current == nil {
		current := decision.Allocations
		body.Current = &current
	}
	return &body, decision, nil
}

type calibrationRunRequest struct {
	Asset     domain.Asset     `json:"asset"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	StepDays  int              `json:"stepDays"`
	Horizons  []domain.Horizon `json:"horizons"`
	Objective string           `json:"objective"`
	Trials    int              `json:"trials"`
	Seed      int64            `json:"seed"`
}

// handleCalibrationRun starts a weight search in the background.
// POST /api/calibration/run
func (s *Server) handleCalibrationRun(w http.ResponseWriter, r *http.Request) {
	var body calibrationRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	from, err := domain.ParseDate(body.From)
	if err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	to, err := domain.ParseDate(body.To)
	if err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	asset := body.Asset
	if asset == "" {
		asset = domain.AssetSPX
	}
	objective := body.Objective
	if objective == "" {
		objective = calibration.ObjectiveHitRate
	}

	runID := uuid.New().String()
	if err := s.deps.Runs.Create(runID, domain.RunKindCalibration); err != nil {
		s.writeError(w, err)
		return
	}

	req := calibration.Request{
		Asset:     asset,
		From:      from,
		To:        to,
		StepDays:  body.StepDays,
		Horizons:  body.Horizons,
		Objective: objective,
		Trials:    body.Trials,
		Seed:      body.Seed,
	}

	go func() {
		version, err := s.deps.Calibrator.Run(req)
		if err != nil {
			s.log.Error().Err(err).Str("runId", runID).Msg("Calibration run failed")
			_ = s.deps.Runs.Fail(runID, err)
			return
		}
		if err := s.deps.Calibration.Save(version); err != nil {
			s.log.Error().Err(err).Str("runId", runID).Msg("Failed to save calibration version")
			_ = s.deps.Runs.Fail(runID, err)
			return
		}
		if err := s.deps.Runs.Complete(runID, version); err != nil {
			s.log.Error().Err(err).Str("runId", runID).Msg("Failed to store calibration result")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  runID,
		"status": domain.RunStatusRunning,
	})
}

// handleCalibrationActive returns the active weight version for an asset.
// GET /api/calibration/active?asset=SPX
func (s *Server) handleCalibrationActive(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	version, err := s.deps.Calibration.ActiveVersion(asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

type promoteRequest struct {
	RunID     string `json:"runId"`
	VersionID string `json:"versionId"`
}

// handleCalibrationPromote evaluates a finished run against the promotion
// gates and, when they pass, activates the candidate version.
// POST /api/calibration/promote
func (s *Server) handleCalibrationPromote(w http.ResponseWriter, r *http.Request) {
	var body promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}
	if body.RunID == "" || body.VersionID == "" {
		s.writeError(w, domain.ErrValidation)
		return
	}

	report, err := s.deps.Runs.Report(body.RunID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	verdict, err := s.deps.Promoter.Promote(report, body.VersionID, s.lastCalibration(report.Asset))
	if err != nil && !errors.Is(err, domain.ErrPromotionRejected) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runId":    body.RunID,
		"verdict":  verdict,
		"promoted": err == nil,
	})
}

// handlePromotionRecommendation runs the gates without side effects.
// GET /api/promotion/recommendation?runId=<runId>
func (s *Server) handlePromotionRecommendation(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		s.writeError(w, domain.ErrValidation)
		return
	}

	report, err := s.deps.Runs.Report(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	verdict := s.deps.Gate.Evaluate(report, s.lastCalibration(report.Asset), time.Now().UTC())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runId":   runID,
		"verdict": verdict,
	})
}

// handleSystemHealth returns host and process health.
// GET /api/system/health
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	// 100ms sample keeps the endpoint responsive for pollers
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}

	memory := map[string]any{}
	if memStat, err := mem.VirtualMemory(); err == nil {
		memory["usedPercent"] = memStat.UsedPercent
		memory["totalMb"] = memStat.Total / 1024 / 1024
		memory["availableMb"] = memStat.Available / 1024 / 1024
	}

	response := map[string]any{
		"status":        "running",
		"uptimeSeconds": int(time.Since(s.deps.Started).Seconds()),
		"cpuPercent":    cpuPercent[0],
		"memory":        memory,
		"goroutines":    runtime.NumGoroutine(),
	}
	if s.deps.Cache != nil {
		response["cacheEntries"] = s.deps.Cache.Len()
	}
	s.writeJSON(w, http.StatusOK, response)
}

// lastCalibration returns the creation time of the active version, or zero
// when no calibration exists yet.
func (s *Server) lastCalibration(asset domain.Asset) time.Time {
	version, err := s.deps.Calibration.ActiveVersion(asset)
	if err != nil {
		return time.Time{}
	}
	return version.CreatedAt
}

func allocationDistance(a, b domain.Allocation) float64 {
	return abs(a.SPX-b.SPX) + abs(a.BTC-b.BTC) + abs(a.DXY-b.DXY) + abs(a.Cash-b.Cash)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func validPosture(p domain.Posture) bool {
	switch p {
	case domain.PostureOffensive, domain.PostureNeutral, domain.PostureDefensive:
		return true
	}
	return false
}

// queryAsset parses the asset parameter, defaulting to SPX.
func queryAsset(r *http.Request) (domain.Asset, error) {
	raw := r.URL.Query().Get("asset")
	if raw == "" {
		return domain.AssetSPX, nil
	}
	asset := domain.Asset(raw)
	for _, a := range domain.UniverseAssets() {
		if asset == a {
			return asset, nil
		}
	}
	return "", domain.ErrValidation
}

// queryAsOf parses the asOf parameter, defaulting to today.
func queryAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return domain.Midnight(time.Now().UTC()), nil
	}
	t, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.ErrValidation
	}
	return t, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	t, err := domain.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		return time.Time{}, domain.ErrValidation
	}
	return t, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryPosture(r *http.Request) (domain.Posture, error) {
	raw := r.URL.Query().Get("posture")
	if raw == "" {
		return domain.PostureNeutral, nil
	}
	posture := domain.Posture(raw)
	if !validPosture(posture) {
		return "", domain.ErrValidation
	}
	return posture, nil
}

// writeJSON writes a JSON response with the standard ok envelope
func (s *Server) writeJSON(w http.ResponseWriter, status int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["ok"] = true

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps a domain error onto the error envelope
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, label := errorStatus(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]any{
		"ok":      false,
		"error":   label,
		"message": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(payload); encodeErr != nil {
		s.log.Error().Err(encodeErr).Msg("Failed to encode error response")
	}
}

// errorStatus maps the domain error taxonomy onto HTTP statuses and stable
// machine labels.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failure"
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound, "run_not_found"
	case errors.Is(err, domain.ErrSeriesUnavailable):
		return http.StatusUnprocessableEntity, "series_unavailable"
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, domain.ErrStaleData):
		return http.StatusUnprocessableEntity, "stale_data"
	case errors.Is(err, domain.ErrInsufficientCalibration):
		return http.StatusUnprocessableEntity, "insufficient_calibration"
	case errors.Is(err, domain.ErrConstraintBreach):
		return http.StatusInternalServerError, "constraint_breach"
	case errors.Is(err, domain.ErrPromotionRejected):
		return http.StatusConflict, "promotion_rejected"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "fetch_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

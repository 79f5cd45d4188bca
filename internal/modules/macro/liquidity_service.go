package macro

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
)

// liquidity components need about five years of weekly history for z context
const liquidityLookbackDays = 6 * 365

// LiquidityService loads the balance-sheet series, builds their contexts and
// runs the impulse engine. Unavailable components degrade the read.
type LiquidityService struct {
	loader  marketdata.Loader
	builder *ContextBuilder
	engine  *LiquidityEngine
	log     zerolog.Logger
}

// NewLiquidityService creates a new liquidity service
func NewLiquidityService(loader marketdata.Loader, log zerolog.Logger) *LiquidityService {
	return &LiquidityService{
		loader:  loader,
		builder: NewContextBuilder(),
		engine:  NewLiquidityEngine(),
		log:     log.With().Str("component", "liquidity").Logger(),
	}
}

// Read computes the liquidity state at a reference date.
func (s *LiquidityService) Read(asOf time.Time) (domain.LiquidityState, error) {
	walcl := s.contextFor(marketdata.SeriesWALCL, asOf)
	rrp := s.contextFor(marketdata.SeriesRRP, asOf)
	tga := s.contextFor(marketdata.SeriesTGA, asOf)

	return s.engine.Compute(walcl, rrp, tga), nil
}

func (s *LiquidityService) contextFor(id string, asOf time.Time) *domain.SeriesContext {
	series, err := s.loader.LoadAsOf(id, asOf, liquidityLookbackDays)
	if err != nil {
		s.log.Warn().Str("series", id).Err(err).Msg("Liquidity component unavailable")
		return nil
	}
	ctx, err := s.builder.Build(series, asOf)
	if err != nil {
		s.log.Warn().Str("series", id).Err(err).Msg("Liquidity context build failed")
		return nil
	}
	return &ctx
}

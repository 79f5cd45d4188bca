package promotion

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

// Activator swaps the active calibration version. The swap must be atomic;
// the calibration repository implements it as a single transaction.
type Activator interface {
	Activate(versionID string) error
}

// Promoter runs the gate and, when applying is enabled, performs the
// active-pointer swap on a promote recommendation.
type Promoter struct {
	gate      *Gate
	activator Activator
	apply     bool
	log       zerolog.Logger
}

// NewPromoter creates a new promoter
func NewPromoter(gate *Gate, activator Activator, apply bool, log zerolog.Logger) *Promoter {
	return &Promoter{
		gate:      gate,
		activator: activator,
		apply:     apply,
		log:       log.With().Str("component", "promoter").Logger(),
	}
}

// Promote evaluates the report for a candidate version. A non-promote
// recommendation returns ErrPromotionRejected with the verdict still
// populated so callers can surface the reasons.
func (p *Promoter) Promote(report *domain.SimulationReport, versionID string, lastCalibration time.Time) (domain.PromotionVerdict, error) {
	verdict := p.gate.Evaluate(report, lastCalibration, time.Now().UTC())

	if verdict.Recommendation != "promote" {
		return verdict, fmt.Errorf("version %s: %s: %w",
			versionID, verdict.Recommendation, domain.ErrPromotionRejected)
	}

	if p.apply && p.activator != nil {
		if err := p.activator.Activate(versionID); err != nil {
			return verdict, fmt.Errorf("activate version %s: %w", versionID, err)
		}
		p.log.Info().Str("versionId", versionID).Msg("Candidate version promoted and activated")
	}

	return verdict, nil
}

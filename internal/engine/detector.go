package engine

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// DetectorConfig holds the detection thresholds.
type DetectorConfig struct {
	// MinEdge is the minimum edge fraction to report, e.g. 0.005 for 0.5%.
	MinEdge float64
	// AllowPartialCovers enables subset detection on markets with more than
	// two outcomes. Partial covers carry a conditional edge and are
	// reported but never allocated.
	AllowPartialCovers bool
	// MaxOutcomes bounds the subset search on large markets.
	MaxOutcomes int
	// MinRiskScore filters opportunities built on unreliable bookmakers.
	MinRiskScore float64
	// Reliability maps bookmaker ID to a reliability weight in [0,1].
	// Unknown bookmakers get DefaultReliability.
	Reliability        map[string]float64
	DefaultReliability float64
}

// Detector searches a market view for complementary-outcome covers whose
// combined implied probability is below 1.
type Detector struct {
	cfg    DetectorConfig
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig, logger *slog.Logger) *Detector {
	if cfg.DefaultReliability == 0 {
		cfg.DefaultReliability = 0.8
	}
	if cfg.MaxOutcomes == 0 {
		cfg.MaxOutcomes = 12
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Detect evaluates a complete market view and returns every qualifying
// cover, full cover first. A closed market returns domain.ErrMarketClosed
// and an incomplete view returns domain.ErrIncompleteView: both mean "not
// evaluable", which is distinct from an evaluated market with no edge
// (nil, nil).
func (d *Detector) Detect(view domain.MarketView) ([]domain.Opportunity, error) {
	if view.Closed {
		return nil, fmt.Errorf("detector: market %s: %w", view.MarketID, domain.ErrMarketClosed)
	}
	if view.Incomplete() {
		return nil, fmt.Errorf("detector: market %s missing %v: %w",
			view.MarketID, view.Missing, domain.ErrIncompleteView)
	}
	if len(view.Best) < 2 {
		return nil, fmt.Errorf("detector: market %s: need at least 2 priced outcomes", view.MarketID)
	}

	var opps []domain.Opportunity

	if full, ok := d.evaluate(view, allIndices(len(view.Best)), domain.KindFull); ok {
		opps = append(opps, full)
	}

	if d.cfg.AllowPartialCovers && len(view.Best) > 2 && len(view.Best) <= d.cfg.MaxOutcomes {
		opps = append(opps, d.partialCovers(view)...)
	}
	return opps, nil
}

// evaluate builds an opportunity from the selected outcome indices when
// their combined implied probability clears the edge threshold and the
// bookmakers involved clear the risk threshold.
func (d *Detector) evaluate(view domain.MarketView, indices []int, kind domain.OpportunityKind) (domain.Opportunity, bool) {
	var sum float64
	legs := make([]domain.Leg, 0, len(indices))
	for _, i := range indices {
		best := view.Best[i]
		sum += 1.0 / best.Price
		legs = append(legs, domain.Leg{
			BookmakerID: best.BookmakerID,
			OutcomeID:   best.OutcomeID,
			Price:       best.Price,
			MaxStake:    best.MaxStake,
		})
	}

	edge := 1.0 - sum
	if edge < d.cfg.MinEdge {
		return domain.Opportunity{}, false
	}

	risk := d.riskScore(legs)
	if risk < d.cfg.MinRiskScore {
		d.logger.Debug("cover rejected on risk score",
			slog.String("market_id", view.MarketID),
			slog.Float64("risk_score", risk),
			slog.Float64("edge", edge),
		)
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Identity:   domain.CoverIdentity(view.MarketID, legs),
		MarketID:   view.MarketID,
		EventName:  view.EventName,
		Kind:       kind,
		Legs:       legs,
		ImpliedSum: sum,
		Edge:       edge,
		RiskScore:  risk,
		State:      domain.OpportunityDetected,
	}, true
}

// partialCovers enumerates strict subsets of size >= 2. A subset priced
// below certainty only profits when a covered outcome wins, so the result
// is flagged partial.
func (d *Detector) partialCovers(view domain.MarketView) []domain.Opportunity {
	n := len(view.Best)
	var opps []domain.Opportunity
	full := (1 << n) - 1
	for mask := 3; mask < full; mask++ {
		if bits.OnesCount(uint(mask)) < 2 {
			continue
		}
		indices := make([]int, 0, n)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				indices = append(indices, i)
			}
		}
		if opp, ok := d.evaluate(view, indices, domain.KindPartial); ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

// riskScore weighs bookmaker reliability: the mean reliability of the legs,
// discounted 10% per additional distinct bookmaker.
func (d *Detector) riskScore(legs []domain.Leg) float64 {
	var sum float64
	distinct := make(map[string]bool, len(legs))
	for _, l := range legs {
		r, ok := d.cfg.Reliability[l.BookmakerID]
		if !ok {
			r = d.cfg.DefaultReliability
		}
		sum += r
		distinct[l.BookmakerID] = true
	}
	mean := sum / float64(len(legs))
	factor := 1.0 - 0.1*float64(len(distinct)-1)
	if factor < 0 {
		factor = 0
	}
	return mean * factor
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

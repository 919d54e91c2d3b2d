package domain

import "time"

// OutcomePrice is the best available price for one outcome and its source.
type OutcomePrice struct {
	OutcomeID   string
	BookmakerID string
	Price       float64
	MaxStake    float64
	ObservedAt  time.Time
}

// MarketView is the derived, ephemeral per-market snapshot the detector
// consumes: for every outcome, the best fresh price across bookmakers.
// It is rebuilt from the quote store on demand and never persisted.
type MarketView struct {
	MarketID   string
	EventName  string
	MarketType string
	Closed     bool
	// Best holds one entry per outcome that has a fresh quote, in the
	// market's outcome order.
	Best []OutcomePrice
	// Missing lists outcomes with no fresh quote. A view with missing
	// outcomes is incomplete and must not be evaluated for arbitrage.
	Missing []string
	BuiltAt time.Time
}

// Incomplete reports whether any outcome lacks a fresh quote.
func (v MarketView) Incomplete() bool {
	return len(v.Missing) > 0
}

// BestFor returns the best price entry for the given outcome, if present.
func (v MarketView) BestFor(outcomeID string) (OutcomePrice, bool) {
	for _, b := range v.Best {
		if b.OutcomeID == outcomeID {
			return b, true
		}
	}
	return OutcomePrice{}, false
}

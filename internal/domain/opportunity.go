package domain

import (
	"sort"
	"strings"
	"time"
)

// OpportunityState is the lifecycle state of a detected opportunity.
type OpportunityState string

const (
	// OpportunityDetected is the state on first sighting of a cover.
	OpportunityDetected OpportunityState = "detected"
	// OpportunityActive means the cover has been re-confirmed at least once
	// with a positive edge.
	OpportunityActive OpportunityState = "active"
	// OpportunityStale means the edge dropped to zero or a leg's quote fell
	// out of the freshness window. Stale opportunities are closed after a
	// grace period without reaffirmation.
	OpportunityStale OpportunityState = "stale"
	// OpportunityClosed is terminal.
	OpportunityClosed OpportunityState = "closed"
)

// Terminal reports whether the state admits no further transitions.
func (s OpportunityState) Terminal() bool {
	return s == OpportunityClosed
}

// OpportunityKind distinguishes full covers from optional partial covers.
type OpportunityKind string

const (
	// KindFull covers every outcome of the market: profit is guaranteed.
	KindFull OpportunityKind = "full"
	// KindPartial covers a strict subset of a multi-outcome market. The
	// edge is conditional on a covered outcome winning, so partial
	// opportunities are reported but never auto-allocated.
	KindPartial OpportunityKind = "partial"
)

// Leg is one bookmaker/outcome/stake triple within an opportunity's cover.
type Leg struct {
	BookmakerID string
	OutcomeID   string
	Price       float64
	MaxStake    float64
	Stake       float64
}

// Payout returns the net result if this leg's outcome wins, given the total
// amount staked across all legs.
func (l Leg) Payout(totalStake float64) float64 {
	return l.Stake*l.Price - totalStake
}

// Opportunity is a detected cover of complementary outcomes whose implied
// probabilities sum below 1, together with the stake plan realizing the edge.
type Opportunity struct {
	ID         string
	Identity   string
	MarketID   string
	EventName  string
	Kind       OpportunityKind
	Legs       []Leg
	ImpliedSum float64
	// Edge is 1 - ImpliedSum; must stay positive for the opportunity to
	// remain in an active state.
	Edge float64
	// RiskScore in [0,1] weighs bookmaker reliability; higher is safer.
	RiskScore  float64
	TotalStake float64
	// Allocated reports whether the stakes were committed to the bankroll.
	Allocated       bool
	State           OpportunityState
	FirstDetectedAt time.Time
	LastConfirmedAt time.Time
}

// CoverIdentity derives the stable identity of a cover: the market plus the
// sorted set of (outcome, bookmaker) pairs. Re-detections of the same
// underlying edge map to the same identity regardless of leg order.
func CoverIdentity(marketID string, legs []Leg) string {
	pairs := make([]string, 0, len(legs))
	for _, l := range legs {
		pairs = append(pairs, l.OutcomeID+"@"+l.BookmakerID)
	}
	sort.Strings(pairs)
	return marketID + "|" + strings.Join(pairs, ",")
}

// Bookmakers returns the distinct bookmaker IDs across the legs.
func (o Opportunity) Bookmakers() []string {
	seen := make(map[string]bool, len(o.Legs))
	var out []string
	for _, l := range o.Legs {
		if !seen[l.BookmakerID] {
			seen[l.BookmakerID] = true
			out = append(out, l.BookmakerID)
		}
	}
	sort.Strings(out)
	return out
}

package domain

import "time"

// Market is the event-level container quotes attach to. Its outcomes are
// mutually exclusive and collectively exhaustive: exactly one wins. The
// outcome set is fixed at creation and never changes.
type Market struct {
	ID        string
	EventName string
	// MarketType describes the bet type, e.g. "match_odds", "total_goals".
	MarketType string
	// Outcomes is the ordered, immutable outcome set.
	Outcomes  []string
	Closed    bool
	CreatedAt time.Time
}

// HasOutcome reports whether outcomeID belongs to the market's outcome set.
func (m Market) HasOutcome(outcomeID string) bool {
	for _, o := range m.Outcomes {
		if o == outcomeID {
			return true
		}
	}
	return false
}

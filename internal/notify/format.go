package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// FormatOpportunityEvent renders a lifecycle event as a notification title
// and message body.
func FormatOpportunityEvent(ev domain.OpportunityEvent) (title, message string) {
	opp := ev.Opportunity

	switch ev.Type {
	case domain.EventOpportunityDetected:
		title = fmt.Sprintf("Arb detected: %.2f%% edge", opp.Edge*100)
	case domain.EventOpportunityReaffirmed:
		title = fmt.Sprintf("Arb reaffirmed: %.2f%% edge", opp.Edge*100)
	case domain.EventOpportunityStale:
		title = "Arb stale"
	case domain.EventOpportunityClosed:
		title = "Arb closed"
	case domain.EventAllocationRejected:
		title = "Allocation rejected"
	default:
		title = string(ev.Type)
	}

	var b strings.Builder
	if opp.EventName != "" {
		fmt.Fprintf(&b, "%s (%s)\n", opp.EventName, opp.MarketID)
	} else {
		fmt.Fprintf(&b, "market %s\n", opp.MarketID)
	}
	for _, leg := range opp.Legs {
		if leg.Stake > 0 {
			fmt.Fprintf(&b, "  %s @ %.3f (%s) stake %.2f\n", leg.OutcomeID, leg.Price, leg.BookmakerID, leg.Stake)
		} else {
			fmt.Fprintf(&b, "  %s @ %.3f (%s)\n", leg.OutcomeID, leg.Price, leg.BookmakerID)
		}
	}
	if opp.TotalStake > 0 {
		fmt.Fprintf(&b, "total stake %.2f", opp.TotalStake)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "\nreason: %s", ev.Reason)
	}

	return title, strings.TrimRight(b.String(), "\n")
}

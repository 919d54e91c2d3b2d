package domain

import "time"

// OpportunityEventType enumerates the lifecycle transitions published to
// downstream consumers (persistence, notifications, WebSocket clients).
type OpportunityEventType string

const (
	EventOpportunityDetected   OpportunityEventType = "opportunity_detected"
	EventOpportunityReaffirmed OpportunityEventType = "opportunity_reaffirmed"
	EventOpportunityStale      OpportunityEventType = "opportunity_stale"
	EventOpportunityClosed     OpportunityEventType = "opportunity_closed"
	// EventAllocationRejected is emitted when a detected edge could not be
	// staked; Reason names the binding constraint.
	EventAllocationRejected OpportunityEventType = "allocation_rejected"
)

// OpportunityEvent carries the full opportunity (legs and committed stakes
// included) on every state transition, so consumers can render or persist it
// without re-deriving the allocation.
type OpportunityEvent struct {
	Type        OpportunityEventType
	Opportunity Opportunity
	// Reason is set for stale, closed, and allocation_rejected events.
	Reason string
	At     time.Time
}

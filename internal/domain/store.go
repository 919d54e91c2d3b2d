package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityStore persists opportunities and their legs across lifecycle
// transitions for the audit trail.
type OpportunityStore interface {
	// Upsert inserts the opportunity or updates it in place (matched by ID),
	// replacing its legs with the current stake plan.
	Upsert(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	// ListByState returns opportunities in the given state, newest first.
	ListByState(ctx context.Context, state OpportunityState, limit int) ([]Opportunity, error)
	// ListClosedBefore returns terminal opportunities whose last confirmation
	// is strictly before the cutoff, for archival.
	ListClosedBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	// DeleteClosedBefore purges terminal opportunities after archival.
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// QuoteHistoryStore is the append-only audit log of every quote the engine
// accepted, including ones later superseded or evicted.
type QuoteHistoryStore interface {
	Append(ctx context.Context, quote Quote) error
	ListByMarket(ctx context.Context, marketID string, limit int) ([]Quote, error)
	// ListBefore returns quotes observed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]Quote, error)
	// DeleteBefore purges quotes observed strictly before the cutoff.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads serialized archives to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest accepted quote per key into a shared cache so
// external surfaces can read prices without touching the engine.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote Quote) error
	GetQuote(ctx context.Context, key QuoteKey) (Quote, error)
}

// QuoteBus is the transport boundary with the acquisition collaborators:
// normalized quote records arrive on a channel, lifecycle events leave on a
// durable stream.
type QuoteBus interface {
	// Subscribe returns a channel of raw quote payloads. The channel closes
	// when the context is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	// Publish sends a payload to an ephemeral channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// StreamAppend appends a payload to a durable, trimmed stream.
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter bounds how often a caller may perform an action, keyed by an
// arbitrary string. Used by the feed layer to throttle noisy publishers.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion so periodic jobs (e.g.
// the archival pass) run on exactly one instance at a time.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned function
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

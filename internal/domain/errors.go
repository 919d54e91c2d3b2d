package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidPrice   = errors.New("price must be greater than 1.0")
	ErrUnknownMarket  = errors.New("unknown market")
	ErrUnknownOutcome = errors.New("outcome not in market's outcome set")
	ErrMarketClosed   = errors.New("market is closed")
	ErrStaleQuote     = errors.New("quote outside freshness window")
	ErrIncompleteView = errors.New("market view is incomplete")
	// ErrOutcomeSetChanged signals a programming-contract failure: a
	// market's outcome set may never mutate after creation.
	ErrOutcomeSetChanged = errors.New("market outcome set changed after creation")
	// ErrLockHeld signals a distributed lock is already held by another
	// process.
	ErrLockHeld = errors.New("lock already held")
)

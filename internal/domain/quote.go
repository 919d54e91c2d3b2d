// Package domain defines the core types shared across the odds arbitrage
// engine: quotes, markets, opportunities, bankroll state, and the store and
// cache interfaces implemented by the infrastructure packages.
package domain

import "time"

// NoLiquidityCap marks a quote whose bookmaker did not advertise a maximum
// stake. Legs built from such quotes are bounded only by bankroll and
// per-bookmaker exposure limits.
const NoLiquidityCap float64 = 0

// Quote is one bookmaker's price for one outcome of a market. Quotes are
// immutable: a newer observation for the same (market, outcome, bookmaker)
// key supersedes the old one, it never mutates it.
type Quote struct {
	MarketID    string
	OutcomeID   string
	BookmakerID string
	// Price is in decimal odds format and must be > 1.0. Prices at or below
	// 1.0 carry no payout above the stake and are rejected at ingestion.
	Price float64
	// MaxStake is the bookmaker's liquidity cap for this price.
	// NoLiquidityCap (0) means unknown/unbounded.
	MaxStake   float64
	ObservedAt time.Time
}

// Key returns the supersession key for the quote.
func (q Quote) Key() QuoteKey {
	return QuoteKey{MarketID: q.MarketID, OutcomeID: q.OutcomeID, BookmakerID: q.BookmakerID}
}

// Capped reports whether the bookmaker advertised a liquidity cap.
func (q Quote) Capped() bool {
	return q.MaxStake > 0
}

// FreshAt reports whether the quote is within the freshness window at now.
func (q Quote) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(q.ObservedAt) <= window
}

// QuoteKey identifies the (market, outcome, bookmaker) triple a quote prices.
type QuoteKey struct {
	MarketID    string
	OutcomeID   string
	BookmakerID string
}

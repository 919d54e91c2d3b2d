// Package engine implements the arbitrage detection and stake allocation
// core: an in-memory quote store with freshness tracking, a detector that
// searches market views for complementary-outcome covers priced below
// certainty, an equal-payout stake allocator with bankroll and liquidity
// constraints, and a lifecycle manager that tracks each detected edge from
// first sighting to expiry.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// QuoteStoreConfig holds the freshness parameters for the quote store.
type QuoteStoreConfig struct {
	// FreshnessWindow is the maximum age for a quote to appear in a view.
	FreshnessWindow time.Duration
	// AuditGracePeriod is how long a quote older than the freshness window
	// is retained (excluded from views) before eviction.
	AuditGracePeriod time.Duration
}

// QuoteStore holds the latest known quote per (market, outcome, bookmaker)
// key. Writers on the same key are serialized by ObservedAt recency, not by
// arrival order; views are built under a single read lock so they observe a
// consistent snapshot.
type QuoteStore struct {
	cfg QuoteStoreConfig

	mu      sync.RWMutex
	markets map[string]domain.Market
	quotes  map[domain.QuoteKey]domain.Quote
}

// NewQuoteStore creates an empty QuoteStore.
func NewQuoteStore(cfg QuoteStoreConfig) *QuoteStore {
	return &QuoteStore{
		cfg:     cfg,
		markets: make(map[string]domain.Market),
		quotes:  make(map[domain.QuoteKey]domain.Quote),
	}
}

// AddMarket registers a market. Registering the same ID again is a no-op when
// the outcome set matches; a different outcome set returns
// domain.ErrOutcomeSetChanged, which callers treat as a contract failure.
func (s *QuoteStore) AddMarket(m domain.Market) error {
	if len(m.Outcomes) < 2 {
		return fmt.Errorf("quotestore: market %s: need at least 2 outcomes", m.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.markets[m.ID]
	if ok {
		if !sameOutcomes(existing.Outcomes, m.Outcomes) {
			return fmt.Errorf("quotestore: market %s: %w", m.ID, domain.ErrOutcomeSetChanged)
		}
		return nil
	}
	s.markets[m.ID] = m
	return nil
}

// CloseMarket marks a market closed. Further quotes for it are rejected.
func (s *QuoteStore) CloseMarket(marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return fmt.Errorf("quotestore: close %s: %w", marketID, domain.ErrUnknownMarket)
	}
	m.Closed = true
	s.markets[marketID] = m
	return nil
}

// Market returns the registered market.
func (s *QuoteStore) Market(marketID string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrUnknownMarket
	}
	return m, nil
}

// MarketIDs returns all registered market IDs in sorted order.
func (s *QuoteStore) MarketIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Upsert stores a quote, replacing any prior quote for the same key when the
// new observation is newer. Exactly-equal timestamps are resolved
// deterministically by preferring the lower price, so concurrent feeds
// reporting the same instant converge on the conservative quote regardless
// of arrival order. Invalid quotes are rejected with a typed error and never
// reach a view.
func (s *QuoteStore) Upsert(q domain.Quote) error {
	if q.Price <= 1.0 {
		return fmt.Errorf("quotestore: %s/%s@%s price %g: %w",
			q.MarketID, q.OutcomeID, q.BookmakerID, q.Price, domain.ErrInvalidPrice)
	}
	if q.MaxStake < 0 {
		return fmt.Errorf("quotestore: %s/%s@%s: negative max stake %g",
			q.MarketID, q.OutcomeID, q.BookmakerID, q.MaxStake)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[q.MarketID]
	if !ok {
		return fmt.Errorf("quotestore: market %s: %w", q.MarketID, domain.ErrUnknownMarket)
	}
	if m.Closed {
		return fmt.Errorf("quotestore: market %s: %w", q.MarketID, domain.ErrMarketClosed)
	}
	if !m.HasOutcome(q.OutcomeID) {
		return fmt.Errorf("quotestore: market %s outcome %s: %w",
			q.MarketID, q.OutcomeID, domain.ErrUnknownOutcome)
	}

	key := q.Key()
	prev, exists := s.quotes[key]
	if exists {
		if q.ObservedAt.Before(prev.ObservedAt) {
			return nil
		}
		if q.ObservedAt.Equal(prev.ObservedAt) && q.Price >= prev.Price {
			return nil
		}
	}
	s.quotes[key] = q
	return nil
}

// View builds the market view at now: for each outcome, the best fresh price
// across bookmakers. Ties on price are broken by the earliest ObservedAt
// (the longer-standing price is more likely genuinely available), then by
// bookmaker ID for determinism. The entire view is built under one read
// lock, so it never mixes quotes from before and after a concurrent upsert.
func (s *QuoteStore) View(marketID string, now time.Time) (domain.MarketView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.MarketView{}, domain.ErrUnknownMarket
	}

	view := domain.MarketView{
		MarketID:   m.ID,
		EventName:  m.EventName,
		MarketType: m.MarketType,
		Closed:     m.Closed,
		BuiltAt:    now,
	}

	for _, outcome := range m.Outcomes {
		best, found := s.bestLocked(marketID, outcome, now)
		if !found {
			view.Missing = append(view.Missing, outcome)
			continue
		}
		view.Best = append(view.Best, best)
	}
	return view, nil
}

// Fresh reports whether the stored quote for the key exists and is within
// the freshness window at now. The allocator uses this to re-validate legs
// immediately before committing stakes.
func (s *QuoteStore) Fresh(key domain.QuoteKey, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[key]
	return ok && q.FreshAt(now, s.cfg.FreshnessWindow)
}

// EvictExpired removes quotes older than freshness window plus audit grace
// period and returns them for the audit collaborator.
func (s *QuoteStore) EvictExpired(now time.Time) []domain.Quote {
	cutoff := now.Add(-s.cfg.FreshnessWindow - s.cfg.AuditGracePeriod)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []domain.Quote
	for key, q := range s.quotes {
		if q.ObservedAt.Before(cutoff) {
			evicted = append(evicted, q)
			delete(s.quotes, key)
		}
	}
	return evicted
}

// bestLocked selects the best fresh quote for one outcome. Caller holds s.mu.
func (s *QuoteStore) bestLocked(marketID, outcomeID string, now time.Time) (domain.OutcomePrice, bool) {
	var best domain.Quote
	found := false
	for key, q := range s.quotes {
		if key.MarketID != marketID || key.OutcomeID != outcomeID {
			continue
		}
		if !q.FreshAt(now, s.cfg.FreshnessWindow) {
			continue
		}
		if !found || betterQuote(q, best) {
			best = q
			found = true
		}
	}
	if !found {
		return domain.OutcomePrice{}, false
	}
	return domain.OutcomePrice{
		OutcomeID:   outcomeID,
		BookmakerID: best.BookmakerID,
		Price:       best.Price,
		MaxStake:    best.MaxStake,
		ObservedAt:  best.ObservedAt,
	}, true
}

// betterQuote reports whether a should be preferred over b when backing the
// outcome: higher price first, then earliest observation, then bookmaker ID.
func betterQuote(a, b domain.Quote) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.Before(b.ObservedAt)
	}
	return a.BookmakerID < b.BookmakerID
}

func sameOutcomes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

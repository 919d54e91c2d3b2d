package engine

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// Bankroll is the process-wide capital state. The exposure check and the
// commit are a single mutual-exclusion scope, so two opportunities competing
// for the same bookmaker's limit can never both pass the check on stale
// committed totals.
type Bankroll struct {
	mu        sync.Mutex
	available float64
	// limits maps bookmaker ID to its configured exposure cap. Bookmakers
	// absent from the map are uncapped.
	limits   map[string]float64
	exposure map[string]float64
	// byOpp remembers each opportunity's per-bookmaker commitment so a
	// re-allocation or release can return exactly what was taken.
	byOpp map[string]map[string]float64
}

// NewBankroll creates a Bankroll with the given starting capital and
// per-bookmaker exposure limits.
func NewBankroll(capital float64, limits map[string]float64) *Bankroll {
	l := make(map[string]float64, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &Bankroll{
		available: capital,
		limits:    l,
		exposure:  make(map[string]float64),
		byOpp:     make(map[string]map[string]float64),
	}
}

// Commit reserves the stake plan for the opportunity. Any previous
// commitment under the same opportunity ID is released first (prices move,
// so reaffirmed opportunities are re-allocated), then the capital and
// per-bookmaker exposure checks run and the reservation is recorded, all
// under one lock. On failure the bankroll is left exactly as before the
// call.
func (b *Bankroll) Commit(oppID string, legs []domain.Leg) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Stage the release of any prior reservation under this ID: the checks
	// run against the post-release totals, but nothing mutates until they
	// pass, so a rejected re-commit keeps the old reservation intact.
	prior := b.byOpp[oppID]
	available := b.available
	for _, amount := range prior {
		available += amount
	}

	var total float64
	perBook := make(map[string]float64, len(legs))
	for _, l := range legs {
		total += l.Stake
		perBook[l.BookmakerID] += l.Stake
	}

	if total > available {
		return fmt.Errorf("bankroll: total stake %.2f exceeds available capital %.2f", total, available)
	}
	for book, amount := range perBook {
		limit, capped := b.limits[book]
		exposed := b.exposure[book] - prior[book]
		if capped && exposed+amount > limit {
			return fmt.Errorf("bankroll: bookmaker %s exposure %.2f+%.2f exceeds limit %.2f",
				book, exposed, amount, limit)
		}
	}

	b.releaseLocked(oppID)
	b.available -= total
	for book, amount := range perBook {
		b.exposure[book] += amount
	}
	b.byOpp[oppID] = perBook
	return nil
}

// Release frees the reservation held for the opportunity, returning the
// staked capital to the available pool. Releasing an unknown ID is a no-op.
func (b *Bankroll) Release(oppID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked(oppID)
}

// Settle releases the opportunity's reservation and credits the realized
// return (stake plus profit, as reported by the settlement collaborator)
// back to the available pool instead of the original stake.
func (b *Bankroll) Settle(oppID string, realized float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	perBook, ok := b.byOpp[oppID]
	if !ok {
		b.available += realized
		return
	}
	for book, amount := range perBook {
		b.exposure[book] -= amount
	}
	delete(b.byOpp, oppID)
	b.available += realized
}

// Headroom returns how much additional exposure the bookmaker can take.
// The second return is false when the bookmaker is uncapped.
func (b *Bankroll) Headroom(bookmakerID string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit, capped := b.limits[bookmakerID]
	if !capped {
		return 0, false
	}
	h := limit - b.exposure[bookmakerID]
	if h < 0 {
		h = 0
	}
	return h, true
}

// Snapshot returns a serializable copy of the current state.
func (b *Bankroll) Snapshot() domain.BankrollSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := domain.BankrollSnapshot{
		AvailableCapital:     b.available,
		PerBookmakerExposure: make(map[string]float64, len(b.exposure)),
	}
	for book, amount := range b.exposure {
		snap.PerBookmakerExposure[book] = amount
		snap.TotalCommitted += amount
	}
	return snap
}

// SnapshotExcluding returns the capital state as it would be once the given
// opportunity's reservation is released. Sizing a reaffirmed opportunity
// against this view mirrors what Commit frees before re-reserving, so the
// replacement plan is not squeezed by the stake it is about to replace.
func (b *Bankroll) SnapshotExcluding(oppID string) domain.BankrollSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	prior := b.byOpp[oppID]
	snap := domain.BankrollSnapshot{
		AvailableCapital:     b.available,
		PerBookmakerExposure: make(map[string]float64, len(b.exposure)),
	}
	for _, amount := range prior {
		snap.AvailableCapital += amount
	}
	for book, amount := range b.exposure {
		adjusted := amount - prior[book]
		snap.PerBookmakerExposure[book] = adjusted
		snap.TotalCommitted += adjusted
	}
	return snap
}

// releaseLocked returns an opportunity's reservation to the pool. Caller
// holds b.mu.
func (b *Bankroll) releaseLocked(oppID string) {
	perBook, ok := b.byOpp[oppID]
	if !ok {
		return
	}
	for book, amount := range perBook {
		b.exposure[book] -= amount
		b.available += amount
	}
	delete(b.byOpp, oppID)
}

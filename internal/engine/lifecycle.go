package engine

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// edgeEpsilon is the tolerance below which a re-detected edge counts as
// unchanged, so a flat market does not emit reaffirmation events every pass.
const edgeEpsilon = 1e-9

// LifecycleConfig holds the lifecycle timing parameters.
type LifecycleConfig struct {
	// StaleGracePeriod is how long a stale opportunity waits for
	// reaffirmation before it is closed.
	StaleGracePeriod time.Duration
}

// Closure reports a terminal transition produced by Expire or CloseMarket.
type Closure struct {
	Opportunity domain.Opportunity
	Reason      string
}

type record struct {
	opp     domain.Opportunity
	staleAt time.Time
	reason  string
}

// Lifecycle tracks each detected edge as a stateful entity, de-duplicating
// re-detections of the same underlying cover by identity. It is a pure state
// machine: callers (the engine) emit the resulting events and drive
// persistence.
type Lifecycle struct {
	cfg    LifecycleConfig
	logger *slog.Logger

	mu         sync.Mutex
	byIdentity map[string]*record
}

// NewLifecycle creates an empty Lifecycle.
func NewLifecycle(cfg LifecycleConfig, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "lifecycle")),
		byIdentity: make(map[string]*record),
	}
}

// Observe folds a fresh detection into the tracked state. First sighting of
// an identity assigns an ID and enters Detected; a re-detection with
// positive edge transitions to (or stays) Active and bumps LastConfirmedAt.
// The returned event type is empty when nothing material changed (same
// identity, edge unchanged), which keeps re-detections of an unchanged view
// idempotent.
func (lc *Lifecycle) Observe(opp domain.Opportunity, now time.Time) (domain.Opportunity, domain.OpportunityEventType) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	rec, ok := lc.byIdentity[opp.Identity]
	if !ok {
		opp.ID = uuid.New().String()
		opp.State = domain.OpportunityDetected
		opp.FirstDetectedAt = now
		opp.LastConfirmedAt = now
		lc.byIdentity[opp.Identity] = &record{opp: opp}
		return opp, domain.EventOpportunityDetected
	}

	prev := rec.opp
	opp.ID = prev.ID
	opp.FirstDetectedAt = prev.FirstDetectedAt
	opp.LastConfirmedAt = now
	opp.State = domain.OpportunityActive
	// Keep the committed stakes until the allocator replaces them.
	opp.TotalStake = prev.TotalStake
	opp.Allocated = prev.Allocated

	unchanged := prev.State != domain.OpportunityStale &&
		math.Abs(prev.Edge-opp.Edge) < edgeEpsilon &&
		sameStakePlan(prev.Legs, opp.Legs)

	rec.opp = opp
	rec.staleAt = time.Time{}
	rec.reason = ""

	if unchanged {
		return opp, ""
	}
	return opp, domain.EventOpportunityReaffirmed
}

// Update replaces the stored copy of an opportunity after the allocator has
// attached stakes. Unknown identities are ignored.
func (lc *Lifecycle) Update(opp domain.Opportunity) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if rec, ok := lc.byIdentity[opp.Identity]; ok {
		rec.opp = opp
	}
}

// MarkStale moves an identity to Stale, starting the grace clock. It
// returns the updated opportunity and true when a transition happened; an
// already-stale or unknown identity returns false.
func (lc *Lifecycle) MarkStale(identity, reason string, now time.Time) (domain.Opportunity, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	rec, ok := lc.byIdentity[identity]
	if !ok || rec.opp.State == domain.OpportunityStale {
		return domain.Opportunity{}, false
	}
	rec.opp.State = domain.OpportunityStale
	rec.staleAt = now
	rec.reason = reason
	return rec.opp, true
}

// Expire closes every stale opportunity whose grace period has elapsed and
// drops it from working state. The closures are returned for event emission
// and bankroll release.
func (lc *Lifecycle) Expire(now time.Time) []Closure {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var closed []Closure
	for identity, rec := range lc.byIdentity {
		if rec.opp.State != domain.OpportunityStale {
			continue
		}
		if now.Sub(rec.staleAt) < lc.cfg.StaleGracePeriod {
			continue
		}
		rec.opp.State = domain.OpportunityClosed
		closed = append(closed, Closure{Opportunity: rec.opp, Reason: rec.reason})
		delete(lc.byIdentity, identity)
	}
	return closed
}

// CloseMarket immediately closes every tracked opportunity on the market,
// regardless of grace period.
func (lc *Lifecycle) CloseMarket(marketID string, now time.Time) []Closure {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var closed []Closure
	for identity, rec := range lc.byIdentity {
		if rec.opp.MarketID != marketID {
			continue
		}
		rec.opp.State = domain.OpportunityClosed
		rec.opp.LastConfirmedAt = now
		closed = append(closed, Closure{Opportunity: rec.opp, Reason: "market_closed"})
		delete(lc.byIdentity, identity)
	}
	return closed
}

// TrackedByMarket returns the identities currently tracked for a market.
func (lc *Lifecycle) TrackedByMarket(marketID string) []string {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var out []string
	for identity, rec := range lc.byIdentity {
		if rec.opp.MarketID == marketID {
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns copies of all non-terminal opportunities, highest edge
// first.
func (lc *Lifecycle) Snapshot() []domain.Opportunity {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	out := make([]domain.Opportunity, 0, len(lc.byIdentity))
	for _, rec := range lc.byIdentity {
		out = append(out, rec.opp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Edge > out[j].Edge })
	return out
}

// sameStakePlan reports whether two leg lists reference the same covers at
// the same prices. Stakes are not compared: allocation reruns anyway when
// prices move.
func sameStakePlan(a, b []domain.Leg) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].BookmakerID != b[i].BookmakerID ||
			a[i].OutcomeID != b[i].OutcomeID ||
			a[i].Price != b[i].Price ||
			a[i].MaxStake != b[i].MaxStake {
			return false
		}
	}
	return true
}

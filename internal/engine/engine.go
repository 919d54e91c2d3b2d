package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// Config bundles the engine's component configuration.
type Config struct {
	QuoteStore QuoteStoreConfig
	Detector   DetectorConfig
	Allocator  AllocatorConfig
	Lifecycle  LifecycleConfig
	// InitialCapital seeds the bankroll.
	InitialCapital float64
	// ExposureLimits maps bookmaker ID to its committed-exposure cap.
	ExposureLimits map[string]float64
	// DryRun computes stake plans without committing them to the bankroll
	// (monitor mode).
	DryRun bool
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
}

// Engine is the synchronous arbitrage core: quotes in, opportunity events
// out. All computation is non-blocking and free of I/O; transports and
// persistence live in the collaborator packages.
type Engine struct {
	cfg       Config
	store     *QuoteStore
	detector  *Detector
	allocator *Allocator
	lifecycle *Lifecycle
	bankroll  *Bankroll
	events    chan domain.OpportunityEvent
	logger    *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Engine from the given configuration.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	bankroll := NewBankroll(cfg.InitialCapital, cfg.ExposureLimits)
	return &Engine{
		cfg:       cfg,
		store:     NewQuoteStore(cfg.QuoteStore),
		detector:  NewDetector(cfg.Detector, logger),
		allocator: NewAllocator(cfg.Allocator, bankroll, logger),
		lifecycle: NewLifecycle(cfg.Lifecycle, logger),
		bankroll:  bankroll,
		events:    make(chan domain.OpportunityEvent, cfg.EventBuffer),
		logger:    logger.With(slog.String("component", "engine")),
		now:       time.Now,
	}
}

// Events returns the channel of lifecycle events. The engine never closes
// it; consumers stop via their own context.
func (e *Engine) Events() <-chan domain.OpportunityEvent {
	return e.events
}

// AddMarket registers a market with the quote store.
func (e *Engine) AddMarket(m domain.Market) error {
	if err := e.store.AddMarket(m); err != nil {
		return fmt.Errorf("engine: add market: %w", err)
	}
	return nil
}

// Market returns a registered market.
func (e *Engine) Market(marketID string) (domain.Market, error) {
	return e.store.Market(marketID)
}

// MarketIDs returns all registered market IDs.
func (e *Engine) MarketIDs() []string {
	return e.store.MarketIDs()
}

// View rebuilds the current market view, for the API surface.
func (e *Engine) View(marketID string) (domain.MarketView, error) {
	return e.store.View(marketID, e.now())
}

// CloseMarket closes the market and immediately closes every opportunity
// tracked on it.
func (e *Engine) CloseMarket(marketID string) error {
	if err := e.store.CloseMarket(marketID); err != nil {
		return fmt.Errorf("engine: close market: %w", err)
	}
	now := e.now()
	for _, c := range e.lifecycle.CloseMarket(marketID, now) {
		e.finalize(c, now)
	}
	return nil
}

// OnQuote ingests one quote and re-evaluates its market. Invalid quotes
// (price <= 1.0, unknown outcome, closed market) are rejected with a typed
// error and contribute nothing to views.
func (e *Engine) OnQuote(q domain.Quote) error {
	if err := e.store.Upsert(q); err != nil {
		return err
	}
	e.evaluate(q.MarketID, e.now())
	return nil
}

// Sweep runs the periodic maintenance pass: evicts expired quotes,
// re-evaluates every market so opportunities with stale legs or vanished
// edges move to Stale, and closes stale opportunities past the grace period.
func (e *Engine) Sweep() {
	now := e.now()

	if evicted := e.store.EvictExpired(now); len(evicted) > 0 {
		e.logger.Debug("evicted expired quotes", slog.Int("count", len(evicted)))
	}

	for _, marketID := range e.store.MarketIDs() {
		e.evaluate(marketID, now)
	}

	for _, c := range e.lifecycle.Expire(now) {
		e.finalize(c, now)
	}
}

// Opportunities returns the currently tracked (non-terminal) opportunities,
// highest edge first.
func (e *Engine) Opportunities() []domain.Opportunity {
	return e.lifecycle.Snapshot()
}

// BankrollSnapshot returns the current capital state.
func (e *Engine) BankrollSnapshot() domain.BankrollSnapshot {
	return e.bankroll.Snapshot()
}

// Settle records an executed opportunity's realized return, as reported by
// the settlement collaborator, releasing its exposure.
func (e *Engine) Settle(oppID string, realized float64) {
	e.bankroll.Settle(oppID, realized)
}

// evaluate is the per-market detection and allocation pass.
func (e *Engine) evaluate(marketID string, now time.Time) {
	view, err := e.store.View(marketID, now)
	if err != nil {
		return
	}
	if view.Closed {
		return
	}

	tracked := e.lifecycle.TrackedByMarket(marketID)

	opps, err := e.detector.Detect(view)
	if err != nil {
		// Not evaluable is distinct from evaluated-no-edge: an incomplete
		// view means some leg's quote went stale, so tracked covers on the
		// market lose their backing.
		if errors.Is(err, domain.ErrIncompleteView) {
			e.markStale(tracked, "stale_leg", now)
		} else {
			e.logger.Debug("market not evaluable",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	sort.Slice(opps, func(i, j int) bool { return opps[i].Edge > opps[j].Edge })

	seen := make(map[string]bool, len(opps))
	for _, opp := range opps {
		seen[opp.Identity] = true
		merged, evType := e.lifecycle.Observe(opp, now)
		if evType == "" {
			// Unchanged re-detection: same identity, same stakes.
			continue
		}
		merged = e.size(merged, now)
		e.lifecycle.Update(merged)
		e.emit(domain.OpportunityEvent{Type: evType, Opportunity: merged, At: now})
	}

	var vanished []string
	for _, identity := range tracked {
		if !seen[identity] {
			vanished = append(vanished, identity)
		}
	}
	e.markStale(vanished, "edge_below_minimum", now)
}

// size runs the allocator for full covers. Partial covers carry a
// conditional edge and are reported unstaked; in dry-run mode the plan is
// computed but never committed.
func (e *Engine) size(opp domain.Opportunity, now time.Time) domain.Opportunity {
	if opp.Kind != domain.KindFull {
		return opp
	}

	if e.cfg.DryRun {
		planned, err := e.allocator.Plan(opp, e.bankroll.Snapshot(), e.cfg.ExposureLimits)
		if err != nil {
			e.rejectAllocation(opp, err, now)
			return opp
		}
		planned.Allocated = false
		return planned
	}

	allocated, err := e.allocator.Allocate(opp, e.cfg.ExposureLimits, e.store.Fresh, now)
	if err != nil {
		e.rejectAllocation(opp, err, now)
		return opp
	}
	return allocated
}

// rejectAllocation surfaces the binding constraint; the opportunity stays in
// its current state with no committed stake.
func (e *Engine) rejectAllocation(opp domain.Opportunity, err error, now time.Time) {
	var allocErr *AllocationError
	reason := err.Error()
	if errors.As(err, &allocErr) {
		reason = string(allocErr.Reason)
		if allocErr.Constraint != "" {
			reason += ": " + allocErr.Constraint
		}
	}
	e.logger.Info("allocation rejected",
		slog.String("opportunity_id", opp.ID),
		slog.String("market_id", opp.MarketID),
		slog.String("reason", reason),
	)
	e.emit(domain.OpportunityEvent{
		Type:        domain.EventAllocationRejected,
		Opportunity: opp,
		Reason:      reason,
		At:          now,
	})
}

func (e *Engine) markStale(identities []string, reason string, now time.Time) {
	for _, identity := range identities {
		opp, ok := e.lifecycle.MarkStale(identity, reason, now)
		if !ok {
			continue
		}
		e.emit(domain.OpportunityEvent{
			Type:        domain.EventOpportunityStale,
			Opportunity: opp,
			Reason:      reason,
			At:          now,
		})
	}
}

// finalize emits the closed event and releases any committed stake.
func (e *Engine) finalize(c Closure, now time.Time) {
	if c.Opportunity.Allocated {
		e.bankroll.Release(c.Opportunity.ID)
	}
	e.emit(domain.OpportunityEvent{
		Type:        domain.EventOpportunityClosed,
		Opportunity: c.Opportunity,
		Reason:      c.Reason,
		At:          now,
	})
}

// emit delivers an event without ever blocking the computation path; a slow
// consumer drops events rather than stalling detection.
func (e *Engine) emit(ev domain.OpportunityEvent) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event channel full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("opportunity_id", ev.Opportunity.ID),
		)
	}
}

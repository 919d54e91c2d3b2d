package engine

import (
	"testing"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

func trackedOpp(marketID string, edge float64) domain.Opportunity {
	legs := []domain.Leg{
		{BookmakerID: "b1", OutcomeID: "home", Price: 2.10},
		{BookmakerID: "b2", OutcomeID: "away", Price: 2.05},
	}
	return domain.Opportunity{
		Identity:   domain.CoverIdentity(marketID, legs),
		MarketID:   marketID,
		Kind:       domain.KindFull,
		Legs:       legs,
		ImpliedSum: 1 - edge,
		Edge:       edge,
	}
}

func newTestLifecycle() *Lifecycle {
	return NewLifecycle(LifecycleConfig{StaleGracePeriod: time.Minute}, testLogger())
}

func TestLifecycleFirstSightingIsDetected(t *testing.T) {
	lc := newTestLifecycle()

	merged, evType := lc.Observe(trackedOpp("m1", 0.036), t0)
	if evType != domain.EventOpportunityDetected {
		t.Fatalf("event = %q, want detected", evType)
	}
	if merged.ID == "" {
		t.Error("no ID assigned on first sighting")
	}
	if merged.State != domain.OpportunityDetected {
		t.Errorf("state = %s, want detected", merged.State)
	}
	if !merged.FirstDetectedAt.Equal(t0) || !merged.LastConfirmedAt.Equal(t0) {
		t.Errorf("timestamps = %v/%v, want %v", merged.FirstDetectedAt, merged.LastConfirmedAt, t0)
	}
}

func TestLifecycleUnchangedRedetectionIsSilent(t *testing.T) {
	lc := newTestLifecycle()

	first, _ := lc.Observe(trackedOpp("m1", 0.036), t0)

	merged, evType := lc.Observe(trackedOpp("m1", 0.036), t0.Add(time.Second))
	if evType != "" {
		t.Fatalf("event = %q, want none for unchanged re-detection", evType)
	}
	if merged.ID != first.ID {
		t.Errorf("identity reassigned: %s vs %s", merged.ID, first.ID)
	}
	if merged.State != domain.OpportunityActive {
		t.Errorf("state = %s, want active", merged.State)
	}
	if !merged.LastConfirmedAt.Equal(t0.Add(time.Second)) {
		t.Error("confirmation timestamp not bumped")
	}
	if !merged.FirstDetectedAt.Equal(t0) {
		t.Error("first detection timestamp lost")
	}
}

func TestLifecycleEdgeChangeReaffirms(t *testing.T) {
	lc := newTestLifecycle()

	lc.Observe(trackedOpp("m1", 0.036), t0)

	changed := trackedOpp("m1", 0.036)
	changed.Legs[0].Price = 2.15
	changed.Edge = 1 - (1/2.15 + 1/2.05)
	changed.ImpliedSum = 1 - changed.Edge

	_, evType := lc.Observe(changed, t0.Add(time.Second))
	if evType != domain.EventOpportunityReaffirmed {
		t.Errorf("event = %q, want reaffirmed on price change", evType)
	}
}

func TestLifecycleStaleRecovery(t *testing.T) {
	lc := newTestLifecycle()

	first, _ := lc.Observe(trackedOpp("m1", 0.036), t0)

	if _, ok := lc.MarkStale(first.Identity, "stale_leg", t0.Add(time.Second)); !ok {
		t.Fatal("mark stale failed")
	}
	if _, ok := lc.MarkStale(first.Identity, "stale_leg", t0.Add(2*time.Second)); ok {
		t.Error("second mark stale should be a no-op")
	}

	// Reaffirmation within the grace period cancels the pending closure.
	merged, evType := lc.Observe(trackedOpp("m1", 0.036), t0.Add(3*time.Second))
	if evType != domain.EventOpportunityReaffirmed {
		t.Fatalf("event = %q, want reaffirmed on recovery from stale", evType)
	}
	if merged.State != domain.OpportunityActive {
		t.Errorf("state = %s, want active", merged.State)
	}
	if closed := lc.Expire(t0.Add(10 * time.Minute)); len(closed) != 0 {
		t.Errorf("recovered opportunity expired anyway: %v", closed)
	}
}

func TestLifecycleExpireHonorsGracePeriod(t *testing.T) {
	lc := newTestLifecycle()

	first, _ := lc.Observe(trackedOpp("m1", 0.036), t0)
	lc.MarkStale(first.Identity, "edge_below_minimum", t0)

	if closed := lc.Expire(t0.Add(30 * time.Second)); len(closed) != 0 {
		t.Fatalf("expired inside grace period: %v", closed)
	}

	closed := lc.Expire(t0.Add(time.Minute))
	if len(closed) != 1 {
		t.Fatalf("closures = %d, want 1", len(closed))
	}
	if closed[0].Reason != "edge_below_minimum" {
		t.Errorf("reason = %q", closed[0].Reason)
	}
	if closed[0].Opportunity.State != domain.OpportunityClosed {
		t.Errorf("state = %s, want closed", closed[0].Opportunity.State)
	}
	if got := lc.Snapshot(); len(got) != 0 {
		t.Errorf("closed opportunity still tracked: %v", got)
	}
}

func TestLifecycleCloseMarketBypassesGrace(t *testing.T) {
	lc := newTestLifecycle()

	lc.Observe(trackedOpp("m1", 0.036), t0)
	lc.Observe(trackedOpp("m2", 0.020), t0)

	closed := lc.CloseMarket("m1", t0.Add(time.Second))
	if len(closed) != 1 {
		t.Fatalf("closures = %d, want 1", len(closed))
	}
	if closed[0].Reason != "market_closed" {
		t.Errorf("reason = %q", closed[0].Reason)
	}
	remaining := lc.Snapshot()
	if len(remaining) != 1 || remaining[0].MarketID != "m2" {
		t.Errorf("remaining = %v, want only m2", remaining)
	}
}

func TestLifecycleSnapshotOrdersByEdge(t *testing.T) {
	lc := newTestLifecycle()

	lc.Observe(trackedOpp("m1", 0.01), t0)
	lc.Observe(trackedOpp("m2", 0.05), t0)
	lc.Observe(trackedOpp("m3", 0.03), t0)

	snap := lc.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("tracked = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Edge > snap[i-1].Edge {
			t.Errorf("snapshot not sorted by edge: %v before %v", snap[i-1].Edge, snap[i].Edge)
		}
	}
}

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *QuoteStore {
	t.Helper()
	s := NewQuoteStore(QuoteStoreConfig{
		FreshnessWindow:  10 * time.Second,
		AuditGracePeriod: time.Minute,
	})
	if err := s.AddMarket(domain.Market{
		ID:        "m1",
		EventName: "Liverpool vs Chelsea",
		Outcomes:  []string{"home", "away"},
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func quote(outcome, book string, price float64, at time.Time) domain.Quote {
	return domain.Quote{
		MarketID:    "m1",
		OutcomeID:   outcome,
		BookmakerID: book,
		Price:       price,
		ObservedAt:  at,
	}
}

func TestUpsertRejectsInvalidQuotes(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		q    domain.Quote
		want error
	}{
		{"price exactly 1.0", quote("home", "bx", 1.0, t0), domain.ErrInvalidPrice},
		{"non-positive price", quote("home", "bx", -2.0, t0), domain.ErrInvalidPrice},
		{"unknown outcome", quote("draw", "bx", 2.0, t0), domain.ErrUnknownOutcome},
		{"unknown market", domain.Quote{MarketID: "m9", OutcomeID: "home", BookmakerID: "bx", Price: 2.0, ObservedAt: t0}, domain.ErrUnknownMarket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Upsert(tt.q); !errors.Is(err, tt.want) {
				t.Errorf("Upsert: got %v, want %v", err, tt.want)
			}
		})
	}

	// The rejected quotes must not appear in the view.
	view, err := s.View("m1", t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Best) != 0 {
		t.Errorf("view has %d prices, want 0", len(view.Best))
	}
}

func TestUpsertRejectsClosedMarket(t *testing.T) {
	s := newTestStore(t)
	if err := s.CloseMarket("m1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(quote("home", "bx", 2.0, t0)); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("got %v, want ErrMarketClosed", err)
	}
}

func TestUpsertLastWriterWinsByTimestamp(t *testing.T) {
	s := newTestStore(t)

	// Newer quote arrives first; the out-of-order older quote must not win.
	if err := s.Upsert(quote("home", "bx", 2.2, t0.Add(5*time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(quote("home", "bx", 2.5, t0)); err != nil {
		t.Fatal(err)
	}

	view, err := s.View("m1", t0.Add(6*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	best, ok := view.BestFor("home")
	if !ok {
		t.Fatal("no best price for home")
	}
	if best.Price != 2.2 {
		t.Errorf("best price = %g, want 2.2 (newer observation)", best.Price)
	}
}

func TestUpsertEqualTimestampsPreferLowerPrice(t *testing.T) {
	s := newTestStore(t)

	// Two feeds report the same bookmaker at the same instant with different
	// prices. The converged result must not depend on arrival order.
	if err := s.Upsert(quote("home", "bx", 2.4, t0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(quote("home", "bx", 2.2, t0)); err != nil {
		t.Fatal(err)
	}

	view, _ := s.View("m1", t0)
	best, _ := view.BestFor("home")
	if best.Price != 2.2 {
		t.Errorf("best price = %g, want conservative 2.2", best.Price)
	}

	// Reverse arrival order on a fresh store converges to the same price.
	s2 := newTestStore(t)
	_ = s2.Upsert(quote("home", "bx", 2.2, t0))
	_ = s2.Upsert(quote("home", "bx", 2.4, t0))
	view2, _ := s2.View("m1", t0)
	best2, _ := view2.BestFor("home")
	if best2.Price != 2.2 {
		t.Errorf("reversed order best price = %g, want 2.2", best2.Price)
	}
}

func TestViewSelectsBestPriceWithTieBreaks(t *testing.T) {
	s := newTestStore(t)

	_ = s.Upsert(quote("home", "b1", 2.0, t0))
	_ = s.Upsert(quote("home", "b2", 2.1, t0.Add(time.Second)))
	// Tie on price with b2: b3's quote is older, so it wins the tie.
	_ = s.Upsert(quote("home", "b3", 2.1, t0))
	_ = s.Upsert(quote("away", "b1", 1.9, t0))

	view, err := s.View("m1", t0.Add(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if view.Incomplete() {
		t.Fatalf("view unexpectedly incomplete: missing %v", view.Missing)
	}
	best, _ := view.BestFor("home")
	if best.Price != 2.1 || best.BookmakerID != "b3" {
		t.Errorf("best = %g@%s, want 2.1@b3 (longer-standing price)", best.Price, best.BookmakerID)
	}
}

func TestViewMarksMissingOutcomesIncomplete(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert(quote("home", "b1", 2.0, t0))

	view, err := s.View("m1", t0)
	if err != nil {
		t.Fatal(err)
	}
	if !view.Incomplete() {
		t.Error("view with unquoted outcome should be incomplete")
	}
	if len(view.Missing) != 1 || view.Missing[0] != "away" {
		t.Errorf("missing = %v, want [away]", view.Missing)
	}
}

func TestViewExcludesStaleQuotes(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert(quote("home", "b1", 2.0, t0))
	_ = s.Upsert(quote("away", "b2", 2.0, t0))

	// Within the freshness window both outcomes are priced.
	view, _ := s.View("m1", t0.Add(9*time.Second))
	if view.Incomplete() {
		t.Fatal("view should be complete inside freshness window")
	}

	// Past the window the quotes are treated as absent, not evicted.
	view, _ = s.View("m1", t0.Add(11*time.Second))
	if !view.Incomplete() {
		t.Error("view should be incomplete once quotes age out")
	}
	if got := s.EvictExpired(t0.Add(11 * time.Second)); len(got) != 0 {
		t.Errorf("quotes evicted during audit grace period: %d", len(got))
	}

	// After freshness + grace the quotes are evicted and returned for audit.
	evicted := s.EvictExpired(t0.Add(10*time.Second + time.Minute + time.Second))
	if len(evicted) != 2 {
		t.Errorf("evicted %d quotes, want 2", len(evicted))
	}
}

func TestAddMarketOutcomeSetImmutable(t *testing.T) {
	s := newTestStore(t)

	// Same outcome set: idempotent.
	if err := s.AddMarket(domain.Market{ID: "m1", Outcomes: []string{"home", "away"}}); err != nil {
		t.Errorf("re-adding identical market: %v", err)
	}

	err := s.AddMarket(domain.Market{ID: "m1", Outcomes: []string{"home", "draw", "away"}})
	if !errors.Is(err, domain.ErrOutcomeSetChanged) {
		t.Errorf("got %v, want ErrOutcomeSetChanged", err)
	}
}

package engine

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDetector(cfg DetectorConfig) *Detector {
	return NewDetector(cfg, testLogger())
}

func viewOf(marketID string, prices map[string]domain.OutcomePrice) domain.MarketView {
	v := domain.MarketView{MarketID: marketID, BuiltAt: t0}
	for _, outcome := range []string{"home", "draw", "away", "a", "b", "c", "d"} {
		if p, ok := prices[outcome]; ok {
			p.OutcomeID = outcome
			v.Best = append(v.Best, p)
		}
	}
	return v
}

func TestDetectTwoOutcomeArbitrage(t *testing.T) {
	d := newTestDetector(DetectorConfig{MinEdge: 0.005})

	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "bookX", Price: 2.10, ObservedAt: t0},
		"away": {BookmakerID: "bookY", Price: 2.05, ObservedAt: t0},
	})

	opps, err := d.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	opp := opps[0]

	wantSum := 1/2.10 + 1/2.05
	if math.Abs(opp.ImpliedSum-wantSum) > 1e-9 {
		t.Errorf("implied sum = %g, want %g", opp.ImpliedSum, wantSum)
	}
	if math.Abs(opp.Edge-(1-wantSum)) > 1e-9 {
		t.Errorf("edge = %g, want %g", opp.Edge, 1-wantSum)
	}
	if math.Abs(opp.Edge-0.0360) > 0.001 {
		t.Errorf("edge = %g, want ~3.60%%", opp.Edge)
	}
	if opp.Kind != domain.KindFull {
		t.Errorf("kind = %s, want full", opp.Kind)
	}
	if len(opp.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(opp.Legs))
	}
	if opp.Legs[0].BookmakerID != "bookX" || opp.Legs[0].Price != 2.10 {
		t.Errorf("leg 0 = %+v, want bookX @ 2.10", opp.Legs[0])
	}
	if opp.Legs[1].BookmakerID != "bookY" || opp.Legs[1].Price != 2.05 {
		t.Errorf("leg 1 = %+v, want bookY @ 2.05", opp.Legs[1])
	}
}

func TestDetectNoEdgeReturnsNothing(t *testing.T) {
	d := newTestDetector(DetectorConfig{MinEdge: 0.005})

	// Overround book: sum > 1.
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 1.90},
		"away": {BookmakerID: "b2", Price: 1.90},
	})
	opps, err := d.Detect(view)
	if err != nil {
		t.Fatalf("evaluable market returned error: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("got %d opportunities, want 0", len(opps))
	}
}

func TestDetectMinEdgeThreshold(t *testing.T) {
	// Prices sum to S; the cover qualifies only when 1-S >= MinEdge.
	// 2.02/2.02 gives S = 0.990099, edge = 0.9901%.
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 2.02},
		"away": {BookmakerID: "b2", Price: 2.02},
	})

	under := newTestDetector(DetectorConfig{MinEdge: 0.0099})
	opps, err := under.Detect(view)
	if err != nil || len(opps) != 1 {
		t.Errorf("edge above threshold: got %d opps, err %v; want 1, nil", len(opps), err)
	}

	over := newTestDetector(DetectorConfig{MinEdge: 0.01})
	opps, err = over.Detect(view)
	if err != nil || len(opps) != 0 {
		t.Errorf("edge below threshold: got %d opps, err %v; want 0, nil", len(opps), err)
	}
}

func TestDetectThreeOutcomeFullCover(t *testing.T) {
	d := newTestDetector(DetectorConfig{MinEdge: 0.005})

	// 1/3.2 + 1/3.9 + 1/3.8 = 0.3125 + 0.25641 + 0.26316 = 0.83207
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 3.2},
		"draw": {BookmakerID: "b2", Price: 3.9},
		"away": {BookmakerID: "b3", Price: 3.8},
	})
	opps, err := d.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1 (partial covers disabled)", len(opps))
	}
	if len(opps[0].Legs) != 3 {
		t.Errorf("full cover has %d legs, want 3", len(opps[0].Legs))
	}
}

func TestDetectPartialCoversOnlyWhenEnabled(t *testing.T) {
	// draw+away alone sum to 1/2.6 + 1/2.7 = 0.7550: a conditional edge.
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 3.5},
		"draw": {BookmakerID: "b2", Price: 2.6},
		"away": {BookmakerID: "b3", Price: 2.7},
	})

	disabled := newTestDetector(DetectorConfig{MinEdge: 0.005})
	opps, err := disabled.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range opps {
		if o.Kind == domain.KindPartial {
			t.Error("partial cover reported with flag disabled")
		}
	}

	enabled := newTestDetector(DetectorConfig{MinEdge: 0.005, AllowPartialCovers: true})
	opps, err = enabled.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	var partials int
	for _, o := range opps {
		if o.Kind == domain.KindPartial {
			partials++
			if len(o.Legs) >= 3 {
				t.Errorf("partial cover has %d legs, want strict subset", len(o.Legs))
			}
		}
	}
	if partials == 0 {
		t.Error("no partial covers reported with flag enabled")
	}
}

func TestDetectSkipsIncompleteView(t *testing.T) {
	d := newTestDetector(DetectorConfig{MinEdge: 0.005})
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 2.10},
	})
	view.Missing = []string{"away"}

	_, err := d.Detect(view)
	if !errors.Is(err, domain.ErrIncompleteView) {
		t.Errorf("got %v, want ErrIncompleteView", err)
	}
}

func TestDetectSkipsClosedMarket(t *testing.T) {
	d := newTestDetector(DetectorConfig{MinEdge: 0.005})
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "b1", Price: 2.10},
		"away": {BookmakerID: "b2", Price: 2.05},
	})
	view.Closed = true

	_, err := d.Detect(view)
	if !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("got %v, want ErrMarketClosed", err)
	}
}

func TestDetectRiskScoreFilter(t *testing.T) {
	view := viewOf("m1", map[string]domain.OutcomePrice{
		"home": {BookmakerID: "shady", Price: 2.10},
		"away": {BookmakerID: "bookY", Price: 2.05},
	})

	d := newTestDetector(DetectorConfig{
		MinEdge:      0.005,
		MinRiskScore: 0.7,
		Reliability:  map[string]float64{"shady": 0.3, "bookY": 0.95},
	})
	opps, err := d.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 0 {
		t.Errorf("low-reliability cover not filtered: %d opps", len(opps))
	}

	// Two reliable books: mean 0.95 x 0.9 (two distinct books) = 0.855.
	trusted := newTestDetector(DetectorConfig{
		MinEdge:      0.005,
		MinRiskScore: 0.7,
		Reliability:  map[string]float64{"shady": 0.95, "bookY": 0.95},
	})
	opps, err = trusted.Detect(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opps, want 1", len(opps))
	}
	if math.Abs(opps[0].RiskScore-0.855) > 1e-9 {
		t.Errorf("risk score = %g, want 0.855", opps[0].RiskScore)
	}
}

func TestCoverIdentityStableUnderLegOrder(t *testing.T) {
	legs := []domain.Leg{
		{BookmakerID: "bx", OutcomeID: "home", Price: 2.10},
		{BookmakerID: "by", OutcomeID: "away", Price: 2.05},
	}
	reversed := []domain.Leg{legs[1], legs[0]}
	if domain.CoverIdentity("m1", legs) != domain.CoverIdentity("m1", reversed) {
		t.Error("identity depends on leg order")
	}
	if domain.CoverIdentity("m1", legs) == domain.CoverIdentity("m2", legs) {
		t.Error("identity ignores market")
	}
}

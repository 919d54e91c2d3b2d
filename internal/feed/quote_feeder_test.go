package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
	"github.com/alanyoungcy/oddsarb/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() *engine.Engine {
	return engine.New(engine.Config{
		QuoteStore: engine.QuoteStoreConfig{
			FreshnessWindow:  10 * time.Second,
			AuditGracePeriod: time.Minute,
		},
		Detector: engine.DetectorConfig{
			MinEdge:            0.01,
			DefaultReliability: 0.9,
		},
		Allocator: engine.AllocatorConfig{
			MaxFraction:     0.1,
			KellyFraction:   1.0,
			PayoutTolerance: 0.05,
			MinTotalStake:   1.0,
		},
		Lifecycle:      engine.LifecycleConfig{StaleGracePeriod: time.Minute},
		InitialCapital: 10000,
	}, testLogger())
}

type captureHistory struct {
	quotes []domain.Quote
}

func (h *captureHistory) Append(ctx context.Context, q domain.Quote) error {
	h.quotes = append(h.quotes, q)
	return nil
}

func (h *captureHistory) ListByMarket(ctx context.Context, marketID string, limit int) ([]domain.Quote, error) {
	return nil, nil
}

func (h *captureHistory) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	return nil, nil
}

func (h *captureHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func newTestFeeder(history domain.QuoteHistoryStore, limiter domain.RateLimiter) (*QuoteFeeder, *engine.Engine) {
	eng := newTestEngine()
	cfg := QuoteFeederConfig{QuoteChannel: "quotes"}
	if limiter != nil {
		cfg.RateLimitPerSec = 1
	}
	return NewQuoteFeeder(cfg, nil, eng, history, nil, limiter, testLogger()), eng
}

func TestFeederRegistersMarketAndIngestsQuotes(t *testing.T) {
	f, eng := newTestFeeder(nil, nil)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	msgs := []string{
		`{"event":"market_new","market_id":"m1","event_name":"A vs B","market_type":"match_winner","outcomes":["home","away"],"timestamp":"` + now + `"}`,
		`{"event":"quote","market_id":"m1","outcome_id":"home","bookmaker_id":"bookX","price":2.10,"timestamp":"` + now + `"}`,
		`{"event":"quote","market_id":"m1","outcome_id":"away","bookmaker_id":"bookY","price":2.05,"timestamp":"` + now + `"}`,
	}
	for _, m := range msgs {
		if err := f.handleMessage(ctx, []byte(m)); err != nil {
			t.Fatalf("handleMessage(%s): %v", m, err)
		}
	}

	view, err := eng.View("m1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Incomplete() {
		t.Fatalf("expected complete view, missing %v", view.Missing)
	}

	opps := eng.Opportunities()
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if opps[0].MarketID != "m1" {
		t.Fatalf("opportunity market = %s", opps[0].MarketID)
	}
}

func TestFeederReannouncedMarketIsNoOp(t *testing.T) {
	f, _ := newTestFeeder(nil, nil)
	ctx := context.Background()

	msg := `{"event":"market_new","market_id":"m1","outcomes":["home","away"]}`
	if err := f.handleMessage(ctx, []byte(msg)); err != nil {
		t.Fatal(err)
	}
	if err := f.handleMessage(ctx, []byte(msg)); err != nil {
		t.Fatalf("re-announcement should be silent, got %v", err)
	}
}

func TestFeederClosureForUnknownMarketIsSilent(t *testing.T) {
	f, _ := newTestFeeder(nil, nil)

	msg := `{"event":"market_closed","market_id":"never-seen"}`
	if err := f.handleMessage(context.Background(), []byte(msg)); err != nil {
		t.Fatalf("unknown market closure should be silent, got %v", err)
	}
}

func TestFeederClosedMarketStopsQuotes(t *testing.T) {
	f, eng := newTestFeeder(nil, nil)
	ctx := context.Background()

	for _, m := range []string{
		`{"event":"market_new","market_id":"m1","outcomes":["home","away"]}`,
		`{"event":"market_closed","market_id":"m1"}`,
	} {
		if err := f.handleMessage(ctx, []byte(m)); err != nil {
			t.Fatal(err)
		}
	}

	quote := `{"event":"quote","market_id":"m1","outcome_id":"home","bookmaker_id":"bookX","price":2.10}`
	if err := f.handleMessage(ctx, []byte(quote)); err == nil {
		t.Fatal("expected error for quote on closed market")
	}
	if len(eng.Opportunities()) != 0 {
		t.Fatal("closed market must not produce opportunities")
	}
}

func TestFeederAppendsAcceptedQuotesToHistory(t *testing.T) {
	history := &captureHistory{}
	f, _ := newTestFeeder(history, nil)
	ctx := context.Background()

	msgs := []string{
		`{"event":"market_new","market_id":"m1","outcomes":["home","away"]}`,
		`{"event":"quote","market_id":"m1","outcome_id":"home","bookmaker_id":"bookX","price":2.10}`,
		`{"event":"quote","market_id":"m1","outcome_id":"home","bookmaker_id":"bookX","price":0.5}`, // invalid, rejected
	}
	for _, m := range msgs {
		_ = f.handleMessage(ctx, []byte(m))
	}

	if len(history.quotes) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(history.quotes))
	}
	if history.quotes[0].BookmakerID != "bookX" || history.quotes[0].Price != 2.10 {
		t.Fatalf("unexpected history row %+v", history.quotes[0])
	}
}

func TestFeederRateLimitDropsQuoteSilently(t *testing.T) {
	f, eng := newTestFeeder(nil, denyLimiter{})
	ctx := context.Background()

	if err := f.handleMessage(ctx, []byte(`{"event":"market_new","market_id":"m1","outcomes":["home","away"]}`)); err != nil {
		t.Fatal(err)
	}
	quote := `{"event":"quote","market_id":"m1","outcome_id":"home","bookmaker_id":"bookX","price":2.10}`
	if err := f.handleMessage(ctx, []byte(quote)); err != nil {
		t.Fatalf("throttled quote should be dropped silently, got %v", err)
	}

	view, err := eng.View("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Best) != 0 {
		t.Fatal("throttled quote must not reach the engine")
	}
}

func TestFeederIgnoresBlankAndUnknownMessages(t *testing.T) {
	f, _ := newTestFeeder(nil, nil)
	ctx := context.Background()

	if err := f.handleMessage(ctx, []byte(`{"event":"quote","market_id":""}`)); err != nil {
		t.Fatalf("blank market id should be ignored, got %v", err)
	}
	if err := f.handleMessage(ctx, []byte(`{"event":"heartbeat","market_id":"m1"}`)); err != nil {
		t.Fatalf("unknown event should be ignored, got %v", err)
	}
	if err := f.handleMessage(ctx, []byte(`not json`)); err == nil {
		t.Fatal("malformed payload should surface a parse error")
	}
}

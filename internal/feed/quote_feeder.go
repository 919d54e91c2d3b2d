// Package feed connects the arbitrage engine to its transports: normalized
// quotes arrive over the Redis quote channel, lifecycle events leave through
// the event publisher.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
	"github.com/alanyoungcy/oddsarb/internal/engine"
)

// quoteMessage is the JSON shape published to the quote channel by the odds
// acquisition collaborators. Event selects the payload: "quote" carries a
// price observation, "market_new" registers a market, "market_closed"
// finalizes one.
type quoteMessage struct {
	Event       string   `json:"event"`
	MarketID    string   `json:"market_id"`
	OutcomeID   string   `json:"outcome_id,omitempty"`
	BookmakerID string   `json:"bookmaker_id,omitempty"`
	Price       float64  `json:"price,omitempty"`
	MaxStake    float64  `json:"max_stake,omitempty"`
	EventName   string   `json:"event_name,omitempty"`
	MarketType  string   `json:"market_type,omitempty"`
	Outcomes    []string `json:"outcomes,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// QuoteFeederConfig holds the feeder's channel and throttling parameters.
type QuoteFeederConfig struct {
	// QuoteChannel is the Redis channel quote messages arrive on.
	QuoteChannel string
	// RateLimitPerSec throttles accepted quotes per bookmaker; 0 disables.
	RateLimitPerSec int
}

// QuoteFeeder subscribes to the quote channel and drives the engine:
// registering markets, ingesting quotes, and appending every accepted quote
// to the audit history.
type QuoteFeeder struct {
	cfg     QuoteFeederConfig
	bus     domain.QuoteBus
	engine  *engine.Engine
	history domain.QuoteHistoryStore
	cache   domain.QuoteCache
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewQuoteFeeder creates a QuoteFeeder. history, cache, and limiter may be
// nil, disabling audit persistence, cache mirroring, and throttling
// respectively.
func NewQuoteFeeder(
	cfg QuoteFeederConfig,
	bus domain.QuoteBus,
	eng *engine.Engine,
	history domain.QuoteHistoryStore,
	cache domain.QuoteCache,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *QuoteFeeder {
	return &QuoteFeeder{
		cfg:     cfg,
		bus:     bus,
		engine:  eng,
		history: history,
		cache:   cache,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "quote_feeder")),
	}
}

// Run subscribes to the quote channel and processes messages until ctx is
// cancelled.
func (f *QuoteFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.cfg.QuoteChannel)
	if err != nil {
		return err
	}
	f.logger.Info("quote feeder started", slog.String("channel", f.cfg.QuoteChannel))
	defer f.logger.Info("quote feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handleMessage(ctx, data); err != nil {
				f.logger.Debug("quote feeder handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *QuoteFeeder) handleMessage(ctx context.Context, data []byte) error {
	var msg quoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	marketID := strings.TrimSpace(msg.MarketID)
	if marketID == "" {
		return nil
	}

	switch msg.Event {
	case "market_new":
		// Re-announcements of a known market are a no-op inside the engine.
		return f.engine.AddMarket(domain.Market{
			ID:         marketID,
			EventName:  msg.EventName,
			MarketType: msg.MarketType,
			Outcomes:   msg.Outcomes,
			CreatedAt:  parseTimestamp(msg.Timestamp),
		})

	case "market_closed":
		err := f.engine.CloseMarket(marketID)
		// A closure for a market this instance never saw is not a fault.
		if errors.Is(err, domain.ErrUnknownMarket) {
			return nil
		}
		return err

	case "quote", "":
		return f.handleQuote(ctx, msg)

	default:
		f.logger.Debug("unknown feed event", slog.String("event", msg.Event))
		return nil
	}
}

func (f *QuoteFeeder) handleQuote(ctx context.Context, msg quoteMessage) error {
	if f.limiter != nil && f.cfg.RateLimitPerSec > 0 {
		allowed, err := f.limiter.Allow(ctx, "feed:"+msg.BookmakerID, f.cfg.RateLimitPerSec, time.Second)
		if err != nil {
			// Rate limiting is best-effort; a cache outage must not stall
			// the quote flow.
			f.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			return nil
		}
	}

	q := domain.Quote{
		MarketID:    msg.MarketID,
		OutcomeID:   msg.OutcomeID,
		BookmakerID: msg.BookmakerID,
		Price:       msg.Price,
		MaxStake:    msg.MaxStake,
		ObservedAt:  parseTimestamp(msg.Timestamp),
	}

	if err := f.engine.OnQuote(q); err != nil {
		// Superseded and invalid quotes are expected traffic, not faults.
		return err
	}

	if f.cache != nil {
		if err := f.cache.SetQuote(ctx, q); err != nil {
			f.logger.Warn("quote cache write failed", slog.String("error", err.Error()))
		}
	}
	if f.history != nil {
		if err := f.history.Append(ctx, q); err != nil {
			f.logger.Warn("quote history append failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// parseTimestamp interprets the feed's RFC3339 timestamp, falling back to
// the local clock when absent or malformed.
func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Now()
}

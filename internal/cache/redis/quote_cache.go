package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// quoteTTL bounds how long a mirrored quote outlives its last write; expired
// entries simply disappear from the cache.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each accepted
// quote is stored at key "quote:{market}:{outcome}:{bookmaker}" with fields
// "price", "max_stake" and "ts" (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteCacheKey(k domain.QuoteKey) string {
	return "quote:" + k.MarketID + ":" + k.OutcomeID + ":" + k.BookmakerID
}

// SetQuote mirrors the latest accepted quote for its key.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteCacheKey(q.Key())
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(q.Price, 'f', -1, 64),
		"max_stake": strconv.FormatFloat(q.MaxStake, 'f', -1, 64),
		"ts":        strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}
	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote retrieves the mirrored quote for a key. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, k domain.QuoteKey) (domain.Quote, error) {
	key := quoteCacheKey(k)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}
	maxStake, err := strconv.ParseFloat(vals["max_stake"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse max_stake %s: %w", key, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}

	return domain.Quote{
		MarketID:    k.MarketID,
		OutcomeID:   k.OutcomeID,
		BookmakerID: k.BookmakerID,
		Price:       price,
		MaxStake:    maxStake,
		ObservedAt:  time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// QuoteHistoryStore implements domain.QuoteHistoryStore using PostgreSQL.
// The table is append-only; superseded quotes stay for the audit trail until
// the archival pass purges them.
type QuoteHistoryStore struct {
	pool *pgxpool.Pool
}

// NewQuoteHistoryStore creates a new QuoteHistoryStore backed by the given
// connection pool.
func NewQuoteHistoryStore(pool *pgxpool.Pool) *QuoteHistoryStore {
	return &QuoteHistoryStore{pool: pool}
}

// Append records one accepted quote.
func (s *QuoteHistoryStore) Append(ctx context.Context, q domain.Quote) error {
	const query = `
		INSERT INTO quote_history (market_id, outcome_id, bookmaker_id, price, max_stake, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		q.MarketID, q.OutcomeID, q.BookmakerID, q.Price, q.MaxStake, q.ObservedAt)
	if err != nil {
		return fmt.Errorf("postgres: append quote %s/%s/%s: %w",
			q.MarketID, q.OutcomeID, q.BookmakerID, err)
	}
	return nil
}

// ListByMarket returns a market's quotes, newest first.
func (s *QuoteHistoryStore) ListByMarket(ctx context.Context, marketID string, limit int) ([]domain.Quote, error) {
	query := `
		SELECT market_id, outcome_id, bookmaker_id, price, max_stake, observed_at
		FROM quote_history WHERE market_id = $1
		ORDER BY observed_at DESC`
	args := []any{marketID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListBefore returns quotes observed strictly before the cutoff, oldest
// first, for archival.
func (s *QuoteHistoryStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	const query = `
		SELECT market_id, outcome_id, bookmaker_id, price, max_stake, observed_at
		FROM quote_history WHERE observed_at < $1
		ORDER BY observed_at ASC`
	return s.list(ctx, query, before)
}

// DeleteBefore purges quotes observed strictly before the cutoff.
func (s *QuoteHistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM quote_history WHERE observed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quote history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *QuoteHistoryStore) list(ctx context.Context, query string, args ...any) ([]domain.Quote, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quote history: %w", err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.MarketID, &q.OutcomeID, &q.BookmakerID, &q.Price, &q.MaxStake, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list quote history rows: %w", err)
	}
	return quotes, nil
}

// Compile-time interface check.
var _ domain.QuoteHistoryStore = (*QuoteHistoryStore)(nil)

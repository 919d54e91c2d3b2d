package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Legs live in a child table and are replaced wholesale on every upsert, so
// the stored plan always matches the latest allocation.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, identity, market_id, event_name, kind,
	implied_sum, edge, risk_score, total_stake, allocated, state,
	first_detected_at, last_confirmed_at`

// Upsert inserts the opportunity or updates it in place, replacing its legs
// with the current stake plan. The row and its legs are written in one
// transaction.
func (s *OpportunityStore) Upsert(ctx context.Context, opp domain.Opportunity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert opportunity %s: %w", opp.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO opportunities (
			id, identity, market_id, event_name, kind,
			implied_sum, edge, risk_score, total_stake, allocated, state,
			first_detected_at, last_confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			implied_sum       = EXCLUDED.implied_sum,
			edge              = EXCLUDED.edge,
			risk_score        = EXCLUDED.risk_score,
			total_stake       = EXCLUDED.total_stake,
			allocated         = EXCLUDED.allocated,
			state             = EXCLUDED.state,
			last_confirmed_at = EXCLUDED.last_confirmed_at`

	if _, err := tx.Exec(ctx, upsert,
		opp.ID, opp.Identity, opp.MarketID, opp.EventName, string(opp.Kind),
		opp.ImpliedSum, opp.Edge, opp.RiskScore, opp.TotalStake, opp.Allocated, string(opp.State),
		opp.FirstDetectedAt, opp.LastConfirmedAt,
	); err != nil {
		return fmt.Errorf("postgres: upsert opportunity %s: %w", opp.ID, err)
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM opportunity_legs WHERE opportunity_id = $1", opp.ID,
	); err != nil {
		return fmt.Errorf("postgres: delete legs %s: %w", opp.ID, err)
	}

	const insertLeg = `
		INSERT INTO opportunity_legs (
			opportunity_id, leg_index, bookmaker_id, outcome_id, price, max_stake, stake
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, leg := range opp.Legs {
		if _, err := tx.Exec(ctx, insertLeg,
			opp.ID, i, leg.BookmakerID, leg.OutcomeID, leg.Price, leg.MaxStake, leg.Stake,
		); err != nil {
			return fmt.Errorf("postgres: insert leg %d of %s: %w", i, opp.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit upsert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one opportunity with its legs. It returns
// domain.ErrNotFound when the ID is unknown.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE id = $1`

	opp, err := scanOpportunity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}

	legs, err := s.legsFor(ctx, []string{id})
	if err != nil {
		return domain.Opportunity{}, err
	}
	opp.Legs = legs[id]
	return opp, nil
}

// ListByState returns opportunities in the given state, newest first.
func (s *OpportunityStore) ListByState(ctx context.Context, state domain.OpportunityState, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + `
		FROM opportunities WHERE state = $1
		ORDER BY last_confirmed_at DESC`
	args := []any{string(state)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListClosedBefore returns terminal opportunities last confirmed strictly
// before the cutoff, oldest first, for archival.
func (s *OpportunityStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + `
		FROM opportunities
		WHERE state = 'closed' AND last_confirmed_at < $1
		ORDER BY last_confirmed_at ASC`
	return s.list(ctx, query, before)
}

// DeleteClosedBefore purges terminal opportunities after archival. Legs go
// with them via the foreign key cascade.
func (s *OpportunityStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM opportunities WHERE state = 'closed' AND last_confirmed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	var ids []string
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
		ids = append(ids, opp.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}

	legs, err := s.legsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range opps {
		opps[i].Legs = legs[opps[i].ID]
	}
	return opps, nil
}

// legsFor fetches the legs for a batch of opportunity IDs in one query,
// keyed by opportunity and ordered by leg index.
func (s *OpportunityStore) legsFor(ctx context.Context, ids []string) (map[string][]domain.Leg, error) {
	out := make(map[string][]domain.Leg, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const query = `
		SELECT opportunity_id, bookmaker_id, outcome_id, price, max_stake, stake
		FROM opportunity_legs
		WHERE opportunity_id = ANY($1)
		ORDER BY opportunity_id, leg_index`

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var oppID string
		var leg domain.Leg
		if err := rows.Scan(&oppID, &leg.BookmakerID, &leg.OutcomeID, &leg.Price, &leg.MaxStake, &leg.Stake); err != nil {
			return nil, fmt.Errorf("postgres: scan leg: %w", err)
		}
		out[oppID] = append(out[oppID], leg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list legs rows: %w", err)
	}
	return out, nil
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var opp domain.Opportunity
	var kind, state string
	if err := row.Scan(
		&opp.ID, &opp.Identity, &opp.MarketID, &opp.EventName, &kind,
		&opp.ImpliedSum, &opp.Edge, &opp.RiskScore, &opp.TotalStake, &opp.Allocated, &state,
		&opp.FirstDetectedAt, &opp.LastConfirmedAt,
	); err != nil {
		return domain.Opportunity{}, err
	}
	opp.Kind = domain.OpportunityKind(kind)
	opp.State = domain.OpportunityState(state)
	return opp, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)

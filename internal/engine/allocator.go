package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// RejectionReason names the constraint that made an allocation infeasible.
type RejectionReason string

const (
	RejectPartialCover RejectionReason = "partial_cover"
	RejectNoEdge       RejectionReason = "no_edge"
	RejectLiquidity    RejectionReason = "liquidity_cap"
	RejectMinStake     RejectionReason = "below_min_total_stake"
	RejectTolerance    RejectionReason = "payout_tolerance"
	RejectStaleLeg     RejectionReason = "stale_leg"
	RejectExposure     RejectionReason = "bookmaker_exposure"
	RejectCapital      RejectionReason = "available_capital"
)

// AllocationError reports why a stake plan was rejected. The bankroll is
// left untouched on rejection.
type AllocationError struct {
	Reason RejectionReason
	// Constraint describes the specific binding constraint, e.g. the leg or
	// bookmaker that bound.
	Constraint string
}

func (e *AllocationError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("allocation rejected: %s", e.Reason)
	}
	return fmt.Sprintf("allocation rejected: %s (%s)", e.Reason, e.Constraint)
}

// AllocatorConfig holds the stake sizing parameters.
type AllocatorConfig struct {
	// MaxFraction caps total exposure per opportunity as a fraction of
	// available capital.
	MaxFraction float64
	// KellyFraction scales the cap further; real-world edges are noisier
	// than modeled, so full Kelly overbets.
	KellyFraction float64
	// PayoutTolerance is the maximum allowed spread between the best and
	// worst leg's net payout after rounding, in currency units.
	PayoutTolerance float64
	// MinTotalStake rejects plans too small to be worth placing.
	MinTotalStake float64
}

// Allocator turns a detected opportunity into a per-leg stake plan that pays
// out the same net amount whichever outcome wins. For a guaranteed edge the
// equal-payout split stake_i = T * q_i / S is the growth-optimal allocation,
// so sizing reduces to choosing the largest feasible total T.
type Allocator struct {
	cfg      AllocatorConfig
	bankroll *Bankroll
	logger   *slog.Logger
}

// NewAllocator creates an Allocator committing into the given bankroll.
func NewAllocator(cfg AllocatorConfig, bankroll *Bankroll, logger *slog.Logger) *Allocator {
	return &Allocator{
		cfg:      cfg,
		bankroll: bankroll,
		logger:   logger.With(slog.String("component", "allocator")),
	}
}

// Plan computes the stake plan against a bankroll snapshot without touching
// shared state. Every constraint is linear in the total stake T, so the
// waterfall reduces to the minimum over the T bound each constraint implies;
// the smallest bound is the binding constraint reported on rejection.
func (a *Allocator) Plan(opp domain.Opportunity, snap domain.BankrollSnapshot, limits map[string]float64) (domain.Opportunity, error) {
	if opp.Kind != domain.KindFull {
		return opp, &AllocationError{Reason: RejectPartialCover}
	}
	if opp.Edge <= 0 {
		return opp, &AllocationError{Reason: RejectNoEdge}
	}

	s := opp.ImpliedSum

	// Fractional-Kelly capital cap.
	t := snap.AvailableCapital * a.cfg.MaxFraction * a.cfg.KellyFraction
	binding := RejectCapital
	constraint := fmt.Sprintf("capital cap %.2f", t)

	// Per-leg liquidity caps: stake_i = T*q_i/S <= MaxStake_i.
	for _, leg := range opp.Legs {
		if !legCapped(leg) {
			continue
		}
		bound := leg.MaxStake * s * leg.Price // MaxStake / (q_i/S), q_i = 1/price
		if bound < t {
			t = bound
			binding = RejectLiquidity
			constraint = fmt.Sprintf("leg %s@%s max stake %.2f", leg.OutcomeID, leg.BookmakerID, leg.MaxStake)
		}
	}

	// Per-bookmaker exposure headroom: sum of a book's stakes <= headroom.
	perBookQ := make(map[string]float64, len(opp.Legs))
	for _, leg := range opp.Legs {
		perBookQ[leg.BookmakerID] += 1.0 / leg.Price
	}
	for book, q := range perBookQ {
		limit, capped := limits[book]
		if !capped {
			continue
		}
		headroom := limit - snap.PerBookmakerExposure[book]
		if headroom < 0 {
			headroom = 0
		}
		bound := headroom * s / q
		if bound < t {
			t = bound
			binding = RejectExposure
			constraint = fmt.Sprintf("bookmaker %s headroom %.2f", book, headroom)
		}
	}

	if t < a.cfg.MinTotalStake || t <= 0 {
		return opp, &AllocationError{Reason: binding, Constraint: constraint}
	}

	// Equal-payout split, rounded to cents.
	legs := make([]domain.Leg, len(opp.Legs))
	var total float64
	for i, leg := range opp.Legs {
		leg.Stake = roundCents(t * (1.0 / leg.Price) / s)
		legs[i] = leg
		total += leg.Stake
	}

	// Rounding can skew the split; reject rather than place a plan whose
	// worst-case payout deviates beyond tolerance or goes negative.
	minPayout, maxPayout := math.Inf(1), math.Inf(-1)
	for _, leg := range legs {
		p := leg.Payout(total)
		minPayout = math.Min(minPayout, p)
		maxPayout = math.Max(maxPayout, p)
	}
	if maxPayout-minPayout > a.cfg.PayoutTolerance {
		return opp, &AllocationError{
			Reason:     RejectTolerance,
			Constraint: fmt.Sprintf("payout spread %.4f > %.4f", maxPayout-minPayout, a.cfg.PayoutTolerance),
		}
	}
	if minPayout <= 0 {
		return opp, &AllocationError{
			Reason:     RejectTolerance,
			Constraint: fmt.Sprintf("worst-case payout %.4f not positive", minPayout),
		}
	}

	opp.Legs = legs
	opp.TotalStake = roundCents(total)
	return opp, nil
}

// Allocate plans against the live bankroll net of any reservation already
// held for this opportunity, re-validates each leg's quote
// freshness immediately before committing, and commits the reservation. On
// any rejection the bankroll is unchanged and the error names the binding
// constraint. fresh is the quote store's freshness check.
func (a *Allocator) Allocate(opp domain.Opportunity, limits map[string]float64, fresh func(domain.QuoteKey, time.Time) bool, now time.Time) (domain.Opportunity, error) {
	planned, err := a.Plan(opp, a.bankroll.SnapshotExcluding(opp.ID), limits)
	if err != nil {
		return opp, err
	}

	// A quote underlying a leg may have expired between detection and
	// allocation; abort with no partial commit.
	for _, leg := range planned.Legs {
		key := domain.QuoteKey{MarketID: opp.MarketID, OutcomeID: leg.OutcomeID, BookmakerID: leg.BookmakerID}
		if !fresh(key, now) {
			return opp, &AllocationError{
				Reason:     RejectStaleLeg,
				Constraint: fmt.Sprintf("leg %s@%s", leg.OutcomeID, leg.BookmakerID),
			}
		}
	}

	if err := a.bankroll.Commit(planned.ID, planned.Legs); err != nil {
		// The snapshot raced another commit; surface the live constraint.
		a.logger.Warn("bankroll commit rejected",
			slog.String("opportunity_id", planned.ID),
			slog.String("error", err.Error()),
		)
		return opp, &AllocationError{Reason: RejectExposure, Constraint: err.Error()}
	}

	planned.Allocated = true
	return planned, nil
}

func legCapped(l domain.Leg) bool {
	return l.MaxStake > 0
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

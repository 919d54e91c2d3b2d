package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
	"github.com/alanyoungcy/oddsarb/internal/notify"
)

// Broadcaster fans a payload out to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// eventEnvelope is the JSON shape appended to the event stream and broadcast
// to WebSocket clients.
type eventEnvelope struct {
	Type        string          `json:"type"`
	Reason      string          `json:"reason,omitempty"`
	At          time.Time       `json:"at"`
	Opportunity opportunityJSON `json:"opportunity"`
}

type opportunityJSON struct {
	ID              string    `json:"id"`
	Identity        string    `json:"identity"`
	MarketID        string    `json:"market_id"`
	EventName       string    `json:"event_name,omitempty"`
	Kind            string    `json:"kind"`
	Legs            []legJSON `json:"legs"`
	ImpliedSum      float64   `json:"implied_sum"`
	Edge            float64   `json:"edge"`
	RiskScore       float64   `json:"risk_score"`
	TotalStake      float64   `json:"total_stake"`
	Allocated       bool      `json:"allocated"`
	State           string    `json:"state"`
	FirstDetectedAt time.Time `json:"first_detected_at"`
	LastConfirmedAt time.Time `json:"last_confirmed_at"`
}

type legJSON struct {
	BookmakerID string  `json:"bookmaker_id"`
	OutcomeID   string  `json:"outcome_id"`
	Price       float64 `json:"price"`
	MaxStake    float64 `json:"max_stake,omitempty"`
	Stake       float64 `json:"stake"`
}

// EventPublisherConfig holds the publisher's stream parameters.
type EventPublisherConfig struct {
	// EventStream is the Redis stream events are appended to.
	EventStream string
}

// EventPublisher drains the engine's event channel and fans each lifecycle
// event out to its consumers: the opportunity store for the audit trail, the
// durable Redis stream, connected WebSocket clients, and the notifier.
// Consumer failures are logged and do not block the remaining consumers.
type EventPublisher struct {
	cfg      EventPublisherConfig
	events   <-chan domain.OpportunityEvent
	store    domain.OpportunityStore
	bus      domain.QuoteBus
	hub      Broadcaster
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher. store, bus, hub, and notifier
// may each be nil to disable that consumer.
func NewEventPublisher(
	cfg EventPublisherConfig,
	events <-chan domain.OpportunityEvent,
	store domain.OpportunityStore,
	bus domain.QuoteBus,
	hub Broadcaster,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *EventPublisher {
	return &EventPublisher{
		cfg:      cfg,
		events:   events,
		store:    store,
		bus:      bus,
		hub:      hub,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "event_publisher")),
	}
}

// Run consumes events until ctx is cancelled.
func (p *EventPublisher) Run(ctx context.Context) error {
	p.logger.Info("event publisher started")
	defer p.logger.Info("event publisher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			p.publish(ctx, ev)
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev domain.OpportunityEvent) {
	if p.store != nil {
		// Allocation rejections carry an opportunity already persisted by
		// its detection event; only state-bearing events are stored.
		if ev.Type != domain.EventAllocationRejected {
			if err := p.store.Upsert(ctx, ev.Opportunity); err != nil {
				p.logger.Error("opportunity store upsert failed",
					slog.String("opportunity_id", ev.Opportunity.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	payload, err := json.Marshal(envelope(ev))
	if err != nil {
		p.logger.Error("event marshal failed", slog.String("error", err.Error()))
		return
	}

	if p.bus != nil {
		if err := p.bus.StreamAppend(ctx, p.cfg.EventStream, payload); err != nil {
			p.logger.Error("event stream append failed",
				slog.String("stream", p.cfg.EventStream),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.hub != nil {
		p.hub.Broadcast(payload)
	}

	if p.notifier != nil {
		title, message := notify.FormatOpportunityEvent(ev)
		if err := p.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
			p.logger.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
}

func envelope(ev domain.OpportunityEvent) eventEnvelope {
	opp := ev.Opportunity
	legs := make([]legJSON, 0, len(opp.Legs))
	for _, l := range opp.Legs {
		legs = append(legs, legJSON{
			BookmakerID: l.BookmakerID,
			OutcomeID:   l.OutcomeID,
			Price:       l.Price,
			MaxStake:    l.MaxStake,
			Stake:       l.Stake,
		})
	}
	return eventEnvelope{
		Type:   string(ev.Type),
		Reason: ev.Reason,
		At:     ev.At,
		Opportunity: opportunityJSON{
			ID:              opp.ID,
			Identity:        opp.Identity,
			MarketID:        opp.MarketID,
			EventName:       opp.EventName,
			Kind:            string(opp.Kind),
			Legs:            legs,
			ImpliedSum:      opp.ImpliedSum,
			Edge:            opp.Edge,
			RiskScore:       opp.RiskScore,
			TotalStake:      opp.TotalStake,
			Allocated:       opp.Allocated,
			State:           string(opp.State),
			FirstDetectedAt: opp.FirstDetectedAt,
			LastConfirmedAt: opp.LastConfirmedAt,
		},
	}
}

package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

type captureStore struct {
	upserts []domain.Opportunity
}

func (s *captureStore) Upsert(ctx context.Context, opp domain.Opportunity) error {
	s.upserts = append(s.upserts, opp)
	return nil
}

func (s *captureStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	return domain.Opportunity{}, domain.ErrNotFound
}

func (s *captureStore) ListByState(ctx context.Context, state domain.OpportunityState, limit int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *captureStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *captureStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type captureBus struct {
	appends [][]byte
}

func (b *captureBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *captureBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.appends = append(b.appends, payload)
	return nil
}

type captureHub struct {
	payloads [][]byte
}

func (h *captureHub) Broadcast(payload []byte) {
	h.payloads = append(h.payloads, payload)
}

func sampleEvent(typ domain.OpportunityEventType) domain.OpportunityEvent {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.OpportunityEvent{
		Type: typ,
		Opportunity: domain.Opportunity{
			ID:       "opp-1",
			Identity: "m1|home@bookX|away@bookY",
			MarketID: "m1",
			Kind:     domain.KindFull,
			Legs: []domain.Leg{
				{BookmakerID: "bookX", OutcomeID: "home", Price: 2.10, Stake: 493.98},
				{BookmakerID: "bookY", OutcomeID: "away", Price: 2.05, Stake: 506.02},
			},
			ImpliedSum:      0.9639954,
			Edge:            0.036,
			TotalStake:      1000,
			Allocated:       true,
			State:           domain.OpportunityActive,
			FirstDetectedAt: at,
			LastConfirmedAt: at,
		},
		At: at,
	}
}

func TestPublisherFansOutToAllConsumers(t *testing.T) {
	store := &captureStore{}
	bus := &captureBus{}
	hub := &captureHub{}
	p := NewEventPublisher(
		EventPublisherConfig{EventStream: "events"},
		nil, store, bus, hub, nil, testLogger(),
	)

	p.publish(context.Background(), sampleEvent(domain.EventOpportunityDetected))

	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	if store.upserts[0].ID != "opp-1" {
		t.Fatalf("upserted id = %s", store.upserts[0].ID)
	}
	if len(bus.appends) != 1 {
		t.Fatalf("expected 1 stream append, got %d", len(bus.appends))
	}
	if len(hub.payloads) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.payloads))
	}
	if string(bus.appends[0]) != string(hub.payloads[0]) {
		t.Fatal("stream and broadcast payloads should match")
	}
}

func TestPublisherSkipsStoreForAllocationRejections(t *testing.T) {
	store := &captureStore{}
	bus := &captureBus{}
	p := NewEventPublisher(
		EventPublisherConfig{EventStream: "events"},
		nil, store, bus, nil, nil, testLogger(),
	)

	ev := sampleEvent(domain.EventAllocationRejected)
	ev.Reason = "capital"
	p.publish(context.Background(), ev)

	if len(store.upserts) != 0 {
		t.Fatalf("rejection must not be upserted, got %d", len(store.upserts))
	}
	if len(bus.appends) != 1 {
		t.Fatalf("rejection should still reach the stream, got %d appends", len(bus.appends))
	}
}

func TestPublisherEnvelopeShape(t *testing.T) {
	payload, err := json.Marshal(envelope(sampleEvent(domain.EventOpportunityDetected)))
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Type        string `json:"type"`
		At          string `json:"at"`
		Opportunity struct {
			ID    string `json:"id"`
			Kind  string `json:"kind"`
			State string `json:"state"`
			Legs  []struct {
				BookmakerID string  `json:"bookmaker_id"`
				Stake       float64 `json:"stake"`
			} `json:"legs"`
		} `json:"opportunity"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Type != string(domain.EventOpportunityDetected) {
		t.Fatalf("type = %s", decoded.Type)
	}
	if decoded.Opportunity.ID != "opp-1" || decoded.Opportunity.Kind != "full" {
		t.Fatalf("unexpected opportunity %+v", decoded.Opportunity)
	}
	if decoded.Opportunity.State != "active" {
		t.Fatalf("state = %s", decoded.Opportunity.State)
	}
	if len(decoded.Opportunity.Legs) != 2 || decoded.Opportunity.Legs[0].BookmakerID != "bookX" {
		t.Fatalf("unexpected legs %+v", decoded.Opportunity.Legs)
	}
}

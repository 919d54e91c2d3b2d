package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the time-ranged query methods it actually calls,
// not the full domain store interfaces. The Postgres stores satisfy these
// implicitly.
// ---------------------------------------------------------------------------

// OpportunityArchiveStore provides read access to terminal opportunities for
// archival purposes.
type OpportunityArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
}

// QuoteArchiveStore provides read access to aged quote history for archival
// purposes.
type QuoteArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error)
}

// Archiver serializes aged records to JSONL and uploads them to object
// storage. Deletion of the archived rows from the primary store is
// intentionally NOT performed here; the caller purges only after the archive
// upload has succeeded.
type Archiver struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	quotes        QuoteArchiveStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, opps OpportunityArchiveStore, quotes QuoteArchiveStore) *Archiver {
	return &Archiver{
		writer:        writer,
		opportunities: opps,
		quotes:        quotes,
	}
}

// opportunityRecord is the JSONL shape for an archived opportunity.
type opportunityRecord struct {
	ID              string      `json:"id"`
	Identity        string      `json:"identity"`
	MarketID        string      `json:"market_id"`
	EventName       string      `json:"event_name,omitempty"`
	Kind            string      `json:"kind"`
	Legs            []legRecord `json:"legs"`
	ImpliedSum      float64     `json:"implied_sum"`
	Edge            float64     `json:"edge"`
	RiskScore       float64     `json:"risk_score"`
	TotalStake      float64     `json:"total_stake"`
	Allocated       bool        `json:"allocated"`
	State           string      `json:"state"`
	FirstDetectedAt time.Time   `json:"first_detected_at"`
	LastConfirmedAt time.Time   `json:"last_confirmed_at"`
}

type legRecord struct {
	BookmakerID string  `json:"bookmaker_id"`
	OutcomeID   string  `json:"outcome_id"`
	Price       float64 `json:"price"`
	MaxStake    float64 `json:"max_stake,omitempty"`
	Stake       float64 `json:"stake"`
}

// quoteRecord is the JSONL shape for an archived quote.
type quoteRecord struct {
	MarketID    string    `json:"market_id"`
	OutcomeID   string    `json:"outcome_id"`
	BookmakerID string    `json:"bookmaker_id"`
	Price       float64   `json:"price"`
	MaxStake    float64   `json:"max_stake,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// ArchiveOpportunities queries the terminal opportunities last confirmed
// before the cutoff, serializes them to JSONL, and uploads the file at
// archive/opportunities/YYYY-MM.jsonl. It returns the count of archived
// records; zero records uploads nothing.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opportunities.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	records := make([]opportunityRecord, 0, len(opps))
	for _, opp := range opps {
		legs := make([]legRecord, 0, len(opp.Legs))
		for _, l := range opp.Legs {
			legs = append(legs, legRecord{
				BookmakerID: l.BookmakerID,
				OutcomeID:   l.OutcomeID,
				Price:       l.Price,
				MaxStake:    l.MaxStake,
				Stake:       l.Stake,
			})
		}
		records = append(records, opportunityRecord{
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
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}
	return int64(len(records)), nil
}

// ArchiveQuoteHistory queries the quotes observed before the cutoff,
// serializes them to JSONL, and uploads the file at
// archive/quotes/YYYY-MM.jsonl. It returns the count of archived records.
func (a *Archiver) ArchiveQuoteHistory(ctx context.Context, before time.Time) (int64, error) {
	quotes, err := a.quotes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes query: %w", err)
	}
	if len(quotes) == 0 {
		return 0, nil
	}

	records := make([]quoteRecord, 0, len(quotes))
	for _, q := range quotes {
		records = append(records, quoteRecord{
			MarketID:    q.MarketID,
			OutcomeID:   q.OutcomeID,
			BookmakerID: q.BookmakerID,
			Price:       q.Price,
			MaxStake:    q.MaxStake,
			ObservedAt:  q.ObservedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes marshal: %w", err)
	}

	path := archivePath("quotes", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes upload: %w", err)
	}
	return int64(len(records)), nil
}

// upload picks the upload strategy by payload size: small archives go up in
// one PutObject, large ones through the multipart manager.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if mp, ok := a.writer.(*Writer); ok && int64(len(buf)) >= minPartSize {
		return mp.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2026-08.jsonl
//	archive/quotes/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

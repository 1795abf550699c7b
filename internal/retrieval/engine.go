package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/blobstore"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/cloudmetrics"
	obsmetrics "github.com/stratumhq/stratum/internal/observability/metrics"
	"github.com/stratumhq/stratum/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Records domain.RecordStore
	Blobs   blobstore.Tiers
	Clock   clock.Clock
	Log     *zap.Logger
}

// Engine resolves records across tiers. The pointer record in the primary
// store decides existence and location; tiered records are rehydrated from
// the blob their pointer names.
type Engine struct {
	records domain.RecordStore
	blobs   blobstore.Tiers
	clock   clock.Clock
	log     *zap.Logger
	stats   *Stats
}

func New(p Params) *Engine {
	return &Engine{
		records: p.Records,
		blobs:   p.Blobs,
		clock:   p.Clock,
		log:     p.Log.Named("retrieval").With(zap.String("component", "retrieval")),
		stats:   NewStats(),
	}
}

func (e *Engine) Stats() *Stats {
	return e.stats
}

// Get resolves a single record by id. The returned label names the tier the
// record was served from, or "not-found" for a miss. A miss is only the
// pointer being absent; a pointer that names an unreadable blob is an error,
// not a miss.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Record, string, error) {
	start := e.clock.Now()
	m := obsmetrics.Storage()

	pointer, err := e.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.stats.RecordMiss()
			m.IncRetrievalMiss()
			return nil, domain.TierLabelNotFound, err
		}
		e.stats.RecordError(domain.TierLabelPrimary)
		m.IncRetrievalError(domain.TierLabelPrimary)
		return nil, domain.TierLabelNotFound, err
	}

	tier := pointer.TierLabel()
	if pointer.InPrimary() {
		elapsed := e.clock.Now().Sub(start)
		e.stats.RecordHit(tier, elapsed)
		m.ObserveRetrieval(tier, elapsed)
		cloudmetrics.RecordRetrieval(tier)
		return pointer, tier, nil
	}

	record, err := e.rehydrate(ctx, pointer)
	if err != nil {
		e.stats.RecordError(tier)
		m.IncRetrievalError(tier)
		e.log.Warn("blob fetch failed",
			zap.String("record_id", pointer.ID),
			zap.String("storage_tier", pointer.StorageTier),
			zap.String("blob_path", pointer.BlobPath),
			zap.Error(err))
		return nil, tier, err
	}

	elapsed := e.clock.Now().Sub(start)
	e.stats.RecordHit(tier, elapsed)
	m.ObserveRetrieval(tier, elapsed)
	cloudmetrics.RecordRetrieval(tier)
	return record, tier, nil
}

// Lookup is the per-id outcome of a batch retrieval.
type Lookup struct {
	ID     string
	Record *domain.Record
	Tier   string
	Err    error
}

// GetMany resolves ids in order. One bad id never fails the batch; each
// entry carries its own outcome.
func (e *Engine) GetMany(ctx context.Context, ids []string) []Lookup {
	results := make([]Lookup, 0, len(ids))
	for _, id := range ids {
		record, tier, err := e.Get(ctx, id)
		results = append(results, Lookup{ID: id, Record: record, Tier: tier, Err: err})
	}
	return results
}

// GetByCustomer returns a customer's records newest-first, rehydrating tiered
// entries. before bounds the page for cursor pagination; nil means from the
// newest. Records whose blob cannot be read are skipped, not fatal.
func (e *Engine) GetByCustomer(ctx context.Context, customerID string, limit int, before *time.Time) ([]*domain.Record, error) {
	pointers, err := e.records.Query(ctx, domain.RecordQuery{
		CustomerID:    customerID,
		CreatedBefore: before,
		Order:         domain.OrderCreatedDesc,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}

	m := obsmetrics.Storage()
	records := make([]*domain.Record, 0, len(pointers))
	for _, pointer := range pointers {
		if pointer.InPrimary() {
			records = append(records, pointer)
			continue
		}
		record, err := e.rehydrate(ctx, pointer)
		if err != nil {
			tier := pointer.TierLabel()
			e.stats.RecordError(tier)
			m.IncRetrievalError(tier)
			e.log.Warn("skipping unreadable record",
				zap.String("record_id", pointer.ID),
				zap.String("customer_id", customerID),
				zap.String("storage_tier", pointer.StorageTier),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// TierDistribution is one tier's slice of the stored population.
type TierDistribution struct {
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// Statistics combines the stored tier distribution with retrieval outcomes
// observed by this process.
type Statistics struct {
	TotalRecords int64                       `json:"total_records"`
	Distribution map[string]TierDistribution `json:"distribution"`
	Retrieval    StatsSnapshot               `json:"retrieval"`
}

func (e *Engine) StorageStatistics(ctx context.Context) (Statistics, error) {
	counts, err := e.records.CountByTier(ctx)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		Distribution: make(map[string]TierDistribution, len(counts)),
		Retrieval:    e.stats.Snapshot(),
	}
	for _, n := range counts {
		stats.TotalRecords += n
	}
	for tier, n := range counts {
		dist := TierDistribution{Count: n}
		if stats.TotalRecords > 0 {
			dist.Percent = float64(n) / float64(stats.TotalRecords) * 100
		}
		stats.Distribution[tier] = dist
	}
	return stats, nil
}

func (e *Engine) rehydrate(ctx context.Context, pointer *domain.Record) (*domain.Record, error) {
	store, container, err := e.storeFor(pointer.StorageTier)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, container, pointer.BlobPath)
	if err != nil {
		return nil, err
	}
	record, err := domain.DecodeBlob(data)
	if err != nil {
		return nil, err
	}
	// The pointer stays authoritative for location.
	record.StorageTier = pointer.StorageTier
	record.BlobPath = pointer.BlobPath
	return record, nil
}

func (e *Engine) storeFor(tier string) (domain.BlobStore, string, error) {
	switch tier {
	case domain.Tier2:
		return e.blobs.Tier2, e.blobs.Tier2Container, nil
	case domain.Tier3:
		return e.blobs.Tier3, e.blobs.Tier3Container, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown storage tier %q", domain.ErrInvalidRecord, tier)
	}
}

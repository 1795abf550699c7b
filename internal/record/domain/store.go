package domain

import (
	"context"
	"time"
)

// Order directions for RecordQuery.
const (
	OrderCreatedAsc  = "created_at asc"
	OrderCreatedDesc = "created_at desc"
)

// RecordQuery selects pointer records from the primary store. Zero-valued
// fields are not applied.
type RecordQuery struct {
	CustomerID string

	// CreatedFrom is inclusive, CreatedBefore exclusive.
	CreatedFrom   *time.Time
	CreatedBefore *time.Time

	// Tier filters on storage_tier. TierPrimary also matches rows where the
	// column is NULL or empty.
	Tier string

	Order string
	Limit int
}

// RecordStore is the primary store capability: point lookup, full replace,
// filtered query and tier aggregation. Implementations must be safe for
// concurrent use; PutFull must be an atomic per-id replace (last write wins).
type RecordStore interface {
	Get(ctx context.Context, id string) (*Record, error)
	PutFull(ctx context.Context, record *Record) error
	Query(ctx context.Context, q RecordQuery) ([]*Record, error)
	CountByTier(ctx context.Context) (map[string]int64, error)
}

// BlobStore is the secondary store capability keyed by container and path.
// Get returns ErrNotFound for absent objects; Delete is idempotent.
type BlobStore interface {
	Put(ctx context.Context, container, path string, data []byte, metadata map[string]string) (int64, error)
	Get(ctx context.Context, container, path string) ([]byte, error)
	Delete(ctx context.Context, container, path string) error
}

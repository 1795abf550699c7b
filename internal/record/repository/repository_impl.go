package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumhq/stratum/internal/record/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db *gorm.DB
}

// Provide builds the gorm-backed primary record store.
func Provide(db *gorm.DB) domain.RecordStore {
	return &store{db: db}
}

func (s *store) Get(ctx context.Context, id string) (*domain.Record, error) {
	if id == "" {
		return nil, domain.ErrInvalidRecord
	}
	var record domain.Record
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get record %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	return &record, nil
}

// PutFull replaces the whole row keyed by id. Last write wins; this is the
// atomic pointer update the migration protocol relies on.
func (s *store) PutFull(ctx context.Context, record *domain.Record) error {
	if record == nil || record.ID == "" {
		return domain.ErrInvalidRecord
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("%w: put record %s: %v", domain.ErrStoreUnavailable, record.ID, err)
	}
	return nil
}

func (s *store) Query(ctx context.Context, q domain.RecordQuery) ([]*domain.Record, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Record{})
	if q.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", q.CustomerID)
	}
	if q.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *q.CreatedFrom)
	}
	if q.CreatedBefore != nil {
		stmt = stmt.Where("created_at < ?", *q.CreatedBefore)
	}
	switch q.Tier {
	case "":
	case domain.TierPrimary:
		stmt = stmt.Where("storage_tier IS NULL OR storage_tier IN ('', ?)", domain.TierPrimary)
	default:
		stmt = stmt.Where("storage_tier = ?", q.Tier)
	}
	order := q.Order
	if order == "" {
		order = domain.OrderCreatedAsc
	}
	stmt = stmt.Order(order)
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}

	var records []*domain.Record
	if err := stmt.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

type tierCount struct {
	StorageTier string
	Total       int64
}

// CountByTier groups pointer records by storage_tier. NULL, empty and
// "primary" all land in the tier1 bucket.
func (s *store) CountByTier(ctx context.Context) (map[string]int64, error) {
	var rows []tierCount
	err := s.db.WithContext(ctx).Raw(
		`SELECT storage_tier, COUNT(*) AS total
		 FROM billing_records
		 GROUP BY storage_tier`,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: count by tier: %v", domain.ErrStoreUnavailable, err)
	}

	counts := map[string]int64{
		domain.TierLabelPrimary: 0,
		domain.TierLabelTier2:   0,
		domain.TierLabelTier3:   0,
	}
	for _, row := range rows {
		switch row.StorageTier {
		case "", domain.TierPrimary:
			counts[domain.TierLabelPrimary] += row.Total
		case domain.Tier2:
			counts[domain.TierLabelTier2] += row.Total
		case domain.Tier3:
			counts[domain.TierLabelTier3] += row.Total
		default:
			counts[row.StorageTier] += row.Total
		}
	}
	return counts, nil
}

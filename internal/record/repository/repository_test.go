package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stratumhq/stratum/internal/record/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:recordrepo%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	return db
}

func seedRecord(t *testing.T, store domain.RecordStore, id, customer string, age time.Duration, tier string) *domain.Record {
	t.Helper()
	record := &domain.Record{
		ID:          id,
		CustomerID:  customer,
		Amount:      10,
		Currency:    "USD",
		CreatedAt:   time.Now().UTC().Add(-age),
		StorageTier: tier,
	}
	require.NoError(t, store.PutFull(context.Background(), record))
	return record
}

func TestGetReturnsNotFoundForMissingID(t *testing.T) {
	store := Provide(openTestDB(t))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutFullReplacesExistingRow(t *testing.T) {
	store := Provide(openTestDB(t))
	ctx := context.Background()

	seedRecord(t, store, "rec-1", "cust-1", time.Hour, "")

	migrated := time.Now().UTC()
	updated := &domain.Record{
		ID:                "rec-1",
		CustomerID:        "cust-1",
		Amount:            10,
		Currency:          "USD",
		CreatedAt:         migrated.Add(-time.Hour),
		StorageTier:       domain.Tier2,
		BlobPath:          "tier2/2025/01/01/cust-1/rec-1.json",
		BlobSize:          256,
		MigratedToTier2At: &migrated,
	}
	require.NoError(t, store.PutFull(ctx, updated))

	got, err := store.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Tier2, got.StorageTier)
	assert.Equal(t, "tier2/2025/01/01/cust-1/rec-1.json", got.BlobPath)
	assert.EqualValues(t, 256, got.BlobSize)
	require.NotNil(t, got.MigratedToTier2At)
}

func TestQueryFiltersByTierAndWindow(t *testing.T) {
	store := Provide(openTestDB(t))
	ctx := context.Background()

	seedRecord(t, store, "old-tiered", "cust-1", 100*24*time.Hour, domain.Tier2)
	seedRecord(t, store, "aging", "cust-1", 40*24*time.Hour, "")
	seedRecord(t, store, "fresh", "cust-1", 10*24*time.Hour, "")

	now := time.Now().UTC()
	from := now.Add(-90 * 24 * time.Hour)
	before := now.Add(-30 * 24 * time.Hour)
	records, err := store.Query(ctx, domain.RecordQuery{
		Tier:          domain.TierPrimary,
		CreatedFrom:   &from,
		CreatedBefore: &before,
		Order:         domain.OrderCreatedAsc,
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "aging", records[0].ID)
}

func TestQueryByCustomerNewestFirst(t *testing.T) {
	store := Provide(openTestDB(t))
	ctx := context.Background()

	seedRecord(t, store, "r1", "cust-2", 3*time.Hour, "")
	seedRecord(t, store, "r2", "cust-2", time.Hour, "")
	seedRecord(t, store, "other", "cust-9", time.Minute, "")

	records, err := store.Query(ctx, domain.RecordQuery{
		CustomerID: "cust-2",
		Order:      domain.OrderCreatedDesc,
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].ID)
	assert.Equal(t, "r1", records[1].ID)
}

func TestCountByTierBucketsPrimaryTogether(t *testing.T) {
	store := Provide(openTestDB(t))
	ctx := context.Background()

	seedRecord(t, store, "p1", "cust-1", time.Hour, "")
	seedRecord(t, store, "p2", "cust-1", time.Hour, domain.TierPrimary)
	seedRecord(t, store, "h1", "cust-1", time.Hour, domain.Tier2)

	counts, err := store.CountByTier(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[domain.TierLabelPrimary])
	assert.EqualValues(t, 1, counts[domain.TierLabelTier2])
	assert.EqualValues(t, 0, counts[domain.TierLabelTier3])
}

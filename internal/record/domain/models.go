package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Storage tiers as persisted on the pointer record. An empty StorageTier
// means the record has never been migrated and lives in the primary store.
const (
	TierPrimary = "primary"
	Tier2       = "tier2"
	Tier3       = "tier3"
)

// Tier labels reported to callers on retrieval.
const (
	TierLabelPrimary  = "tier1"
	TierLabelTier2    = "tier2"
	TierLabelTier3    = "tier3"
	TierLabelNotFound = "not-found"
)

// Record is a billing record. Before migration the primary store holds the
// full record; afterwards the same row remains as the pointer record and the
// authoritative payload lives at BlobPath in the tier's blob store.
type Record struct {
	ID         string            `gorm:"primaryKey;size:64" json:"id"`
	CustomerID string            `gorm:"not null;index:idx_billing_records_customer_created,priority:1" json:"customer_id"`
	Amount     float64           `gorm:"not null;default:0" json:"amount"`
	Currency   string            `gorm:"size:8" json:"currency,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_billing_records_customer_created,priority:2;index:idx_billing_records_tier_created,priority:2" json:"created_at"`

	StorageTier       string     `gorm:"size:16;index:idx_billing_records_tier_created,priority:1" json:"storage_tier,omitempty"`
	BlobPath          string     `gorm:"size:512" json:"blob_path,omitempty"`
	BlobSize          int64      `json:"blob_size,omitempty"`
	MigratedToTier2At *time.Time `json:"migrated_to_tier2_at,omitempty"`
	MigratedToTier3At *time.Time `json:"migrated_to_tier3_at,omitempty"`
}

func (Record) TableName() string {
	return "billing_records"
}

// InPrimary reports whether the primary store copy is the authoritative one.
func (r *Record) InPrimary() bool {
	return r.StorageTier == "" || r.StorageTier == TierPrimary
}

// TierLabel returns the retrieval label for the record's current tier.
func (r *Record) TierLabel() string {
	switch r.StorageTier {
	case Tier2:
		return TierLabelTier2
	case Tier3:
		return TierLabelTier3
	default:
		return TierLabelPrimary
	}
}

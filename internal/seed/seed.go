package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/record/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var sampleCurrencies = []string{"USD", "EUR", "GBP"}

// seedAgesDays staggers sample records across the tiering thresholds so the
// first migration sweep has work in both stages.
var seedAgesDays = []int{2, 10, 25, 45, 60, 80, 100, 150}

// EnsureSampleRecords seeds n billing records for local evaluation. It is a
// no-op when the table already has rows.
func EnsureSampleRecords(db *gorm.DB, clk clock.Clock, n int) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if clk == nil {
		return errors.New("seed clock is required")
	}
	if n <= 0 {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Record{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := clk.Now()
		records := make([]*domain.Record, 0, n)
		for i := 0; i < n; i++ {
			age := seedAgesDays[i%len(seedAgesDays)]
			records = append(records, &domain.Record{
				ID:         node.Generate().String(),
				CustomerID: fmt.Sprintf("sample-customer-%d", i%4+1),
				Amount:     float64(10+i%90) + 0.99,
				Currency:   sampleCurrencies[i%len(sampleCurrencies)],
				Metadata: datatypes.JSONMap{
					"source": "seed",
					"plan":   fmt.Sprintf("plan-%d", i%3+1),
				},
				CreatedAt: now.AddDate(0, 0, -age),
			})
		}
		return tx.CreateInBatches(records, 100).Error
	})
}

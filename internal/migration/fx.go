package migration

import (
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/record/domain"
	"github.com/stratumhq/stratum/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql development setups take the schema straight
			// from the model.
			if err := conn.AutoMigrate(&domain.Record{}); err != nil {
				return err
			}
		}

		if cfg.SeedSampleRecords > 0 {
			return seed.EnsureSampleRecords(conn, clk, cfg.SeedSampleRecords)
		}
		return nil
	}),
)

package record

import (
	"github.com/stratumhq/stratum/internal/record/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("record.store",
	fx.Provide(repository.Provide),
)

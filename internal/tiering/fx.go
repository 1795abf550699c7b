package tiering

import "go.uber.org/fx"

var Module = fx.Module("tiering.engine",
	fx.Provide(New),
)

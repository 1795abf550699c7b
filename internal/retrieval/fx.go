package retrieval

import "go.uber.org/fx"

var Module = fx.Module("retrieval.engine",
	fx.Provide(New),
)

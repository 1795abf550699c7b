package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/migration"
	"github.com/stratumhq/stratum/internal/observability"
	"github.com/stratumhq/stratum/internal/server"
	"github.com/stratumhq/stratum/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

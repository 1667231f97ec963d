package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/clock"
	"github.com/smallbiznis/farebox/internal/migration"
	"github.com/smallbiznis/farebox/internal/observability"
	"github.com/smallbiznis/farebox/internal/server"
	"github.com/smallbiznis/farebox/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

package cli

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen"
	"github.com/smallbiznis/ordersync/internal/localstore"
	"github.com/smallbiznis/ordersync/internal/migration"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/observability"
	"github.com/smallbiznis/ordersync/internal/orderstore"
	"github.com/smallbiznis/ordersync/internal/persistence"
	"github.com/smallbiznis/ordersync/internal/realtime"
	"github.com/smallbiznis/ordersync/internal/server"
	"github.com/smallbiznis/ordersync/internal/shift"
	"github.com/smallbiznis/ordersync/pkg/db"
	"go.uber.org/fx"
)

// storeModules wires the order store and shift ledger without the HTTP
// surface or the kitchen link.
func storeModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		localstore.Module,
		normalize.Module,
		orderstore.Module,
		shift.Module,
	)
}

func serveModules() fx.Option {
	return fx.Options(
		storeModules(),
		realtime.Module,
		kitchen.Module,
		persistence.Module,
		server.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

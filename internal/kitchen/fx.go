package kitchen

import (
	"context"

	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"github.com/smallbiznis/ordersync/internal/kitchen/ledger"
	"github.com/smallbiznis/ordersync/internal/kitchen/transport/amqpbus"
	"github.com/smallbiznis/ordersync/internal/kitchen/transport/redisbus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kitchen",
	fx.Provide(provideTransport),
	ledger.Module,
	bridge.Module,
)

// provideTransport picks the kitchen channel from KITCHEN_TRANSPORT. A nil
// transport leaves the bridge on local broadcast.
func provideTransport(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) bridge.Transport {
	switch cfg.Kitchen.Transport {
	case config.KitchenTransportRedis:
		client := redisbus.NewClient(cfg.Kitchen)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		return redisbus.New(client, cfg.Kitchen, log)
	case config.KitchenTransportAMQP:
		return amqpbus.New(cfg.Kitchen, log)
	default:
		return nil
	}
}

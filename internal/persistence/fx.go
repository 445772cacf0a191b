package persistence

import (
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"github.com/smallbiznis/ordersync/internal/realtime"
	shiftservice "github.com/smallbiznis/ordersync/internal/shift/service"
	"go.uber.org/fx"
)

var Module = fx.Module("persistence",
	fx.Provide(
		New,
		func(b *bridge.Bridge) KitchenPublisher { return b },
		func(a *realtime.Aggregator) KitchenKeySource { return a },
		func(s *shiftservice.Service) ShiftLinker { return s },
	),
)

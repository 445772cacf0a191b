package orderstore

import (
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("orderstore",
	fx.Provide(
		New,
		func(s *Store) domain.RemoteStore { return s },
	),
)

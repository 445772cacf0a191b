package shift

import (
	"github.com/smallbiznis/ordersync/internal/shift/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shift.service",
	fx.Provide(service.New),
)

package ledger

import "go.uber.org/fx"

var Module = fx.Module("kitchen.ledger",
	fx.Provide(New),
)

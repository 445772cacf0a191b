package bridge

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kitchen.bridge",
	fx.Provide(
		NewLocalBroadcaster,
		New,
	),
	fx.Invoke(runBridge),
)

func runBridge(lc fx.Lifecycle, b *Bridge, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go func() {
				if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("kitchen bridge stopped", zap.Error(err))
				}
			}()

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

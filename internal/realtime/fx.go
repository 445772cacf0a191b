package realtime

import (
	"context"

	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/realtime/feed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("realtime",
	fx.Provide(New),
	fx.Invoke(runAggregator),
)

type runParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Log        *zap.Logger
	Aggregator *Aggregator
	DB         *gorm.DB                   `optional:"true"`
	Engine     *config.EngineConfigHolder `optional:"true"`
}

// runAggregator starts the recompute loop and, when a database is wired,
// hydrates from it and keeps polling its feed tables.
func runAggregator(p runParams) {
	log := p.Log.Named("realtime")

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go p.Aggregator.Run(ctx)

			if p.DB != nil {
				polling := feed.NewPollingFeed(p.DB, p.Log, feed.PollingConfig{
					Interval: p.Engine.Get().FeedPollInterval,
				})
				go func() {
					if err := p.Aggregator.Hydrate(ctx, polling); err != nil {
						log.Warn("initial hydration incomplete", zap.Error(err))
					}
					if err := p.Aggregator.Attach(ctx, polling); err != nil {
						log.Error("feed attach failed", zap.Error(err))
					}
				}()
			}

			p.Lifecycle.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

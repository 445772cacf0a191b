package localstore

import (
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("localstore",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
}

// New opens the device store. Any failure degrades to Noop.
func New(p Params) Store {
	log := p.Log.Named("localstore")
	if !p.Config.LocalStore.Enabled {
		log.Info("local store disabled")
		return Noop{}
	}

	conn, err := db.Open(db.Config{Type: "sqlite", Path: p.Config.LocalStore.Path}, p.Log)
	if err != nil {
		log.Warn("local store unavailable", zap.String("path", p.Config.LocalStore.Path), zap.Error(err))
		return Noop{}
	}
	store, err := NewGormStore(conn, p.Log, p.Clock.Now)
	if err != nil {
		log.Warn("local store unavailable", zap.String("path", p.Config.LocalStore.Path), zap.Error(err))
		return Noop{}
	}
	return store
}

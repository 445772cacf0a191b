package migration

import (
	"strings"

	"github.com/smallbiznis/ordersync/internal/orderstore"
	"github.com/smallbiznis/ordersync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		log = log.Named("migration")
		if !strings.EqualFold(strings.TrimSpace(cfg.Type), "postgres") {
			log.Info("auto-migrating order tables", zap.String("dialect", cfg.Type))
			return orderstore.AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log)
	}),
)

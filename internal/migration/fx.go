package migration

import (
	"strings"

	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	dialect := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if dialect == "" || dialect == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("schema migrations applied", zap.String("dialect", "postgres"))
		return nil
	}

	if err := AutoMigrate(conn); err != nil {
		return err
	}
	log.Info("schema auto-migrated", zap.String("dialect", dialect))
	return nil
}

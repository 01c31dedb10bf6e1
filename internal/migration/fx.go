package migration

import (
	"github.com/scalehq/entitlements/internal/config"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// sqlite is the local/test path; AutoMigrate keeps it zero-setup.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&userdomain.User{},
				&usagedomain.UsageEvent{},
				&webhookdomain.WebhookRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

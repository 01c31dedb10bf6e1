package usage

import (
	"context"

	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	"github.com/scalehq/entitlements/internal/usage/repository"
	"github.com/scalehq/entitlements/internal/usage/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(registerPurge),
)

// registerPurge sweeps the retention window once at startup. A scheduled
// job would also work, but a process restart cadence is frequent enough
// for a 365-day window.
func registerPurge(lc fx.Lifecycle, svc usagedomain.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if _, err := svc.PurgeExpired(context.Background()); err != nil {
					log.Warn("usage event purge failed", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

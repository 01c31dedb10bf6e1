package webhook

import (
	"github.com/scalehq/entitlements/internal/webhook/repository"
	"github.com/scalehq/entitlements/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

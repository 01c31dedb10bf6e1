package billing

import (
	"github.com/scalehq/entitlements/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.NewClient),
)

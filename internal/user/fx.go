package user

import (
	"github.com/scalehq/entitlements/internal/user/repository"
	"github.com/scalehq/entitlements/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

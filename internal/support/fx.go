package support

import (
	"github.com/monstrox/monstro/internal/support/repository"
	"github.com/monstrox/monstro/internal/support/service"
	"github.com/monstrox/monstro/internal/support/session"
	"go.uber.org/fx"
)

var Module = fx.Module("support.service",
	fx.Provide(repository.Provide),
	fx.Provide(session.NewFromConfig),
	fx.Provide(service.New),
)

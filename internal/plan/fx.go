package plan

import (
	"github.com/monstrox/monstro/internal/plan/repository"
	"github.com/monstrox/monstro/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

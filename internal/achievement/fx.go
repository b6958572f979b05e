package achievement

import (
	"github.com/monstrox/monstro/internal/achievement/repository"
	"github.com/monstrox/monstro/internal/achievement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("achievement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package social

import (
	"github.com/monstrox/monstro/internal/social/repository"
	"github.com/monstrox/monstro/internal/social/service"
	"go.uber.org/fx"
)

var Module = fx.Module("social.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

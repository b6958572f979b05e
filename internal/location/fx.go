package location

import (
	"github.com/monstrox/monstro/internal/location/repository"
	"github.com/monstrox/monstro/internal/location/service"
	"go.uber.org/fx"
)

var Module = fx.Module("location.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

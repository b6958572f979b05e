package audit

import (
	"github.com/monstrox/monstro/internal/audit/repository"
	"github.com/monstrox/monstro/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

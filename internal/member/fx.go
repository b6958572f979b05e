package member

import (
	"github.com/monstrox/monstro/internal/member/repository"
	"github.com/monstrox/monstro/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.Provisioner),
	fx.Provide(service.TokenStore),
)

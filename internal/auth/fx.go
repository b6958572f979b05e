package auth

import (
	"github.com/monstrox/monstro/internal/auth/repository"
	"github.com/monstrox/monstro/internal/auth/service"
	"github.com/monstrox/monstro/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(token.NewManager),
	fx.Provide(service.New),
)

package payment

import (
	"github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/payment/repository"
	"github.com/monstrox/monstro/internal/payment/service"
	"github.com/monstrox/monstro/internal/payment/webhook"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(s *service.Service) subscriptiondomain.Charger { return s }),
	fx.Provide(webhook.NewService),
)

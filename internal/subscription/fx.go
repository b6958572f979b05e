package subscription

import (
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/subscription/repository"
	"github.com/monstrox/monstro/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

var WorkerModule = fx.Module("subscription.worker",
	fx.Provide(queue.AsHandler(service.NewRenewHandler)),
)

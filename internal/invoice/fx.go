package invoice

import (
	"github.com/monstrox/monstro/internal/invoice/repository"
	"github.com/monstrox/monstro/internal/invoice/service"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

var WorkerModule = fx.Module("invoice.worker",
	fx.Provide(queue.AsHandler(service.NewSendHandler)),
)

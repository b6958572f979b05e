package class

import (
	"github.com/monstrox/monstro/internal/class/repository"
	"github.com/monstrox/monstro/internal/class/service"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
)

var Module = fx.Module("class.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

var WorkerModule = fx.Module("class.worker",
	fx.Provide(queue.AsHandler(service.NewReminderHandler)),
)

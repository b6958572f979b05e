package email

import (
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
)

var Module = fx.Module("email",
	fx.Provide(NewRenderer),
	fx.Provide(NewDispatcher),
	fx.Provide(NewService),
)

var WorkerModule = fx.Module("email.worker",
	fx.Provide(queue.AsHandler(NewSendHandler)),
)

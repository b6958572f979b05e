package scheduler

import (
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
)

// WorkerModule runs the sweeps inside the queue worker; cron only enqueues
// the sweep tasks.
var WorkerModule = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Provide(queue.AsHandler(NewRecoveryHandler)),
	fx.Provide(queue.AsHandler(NewOverdueHandler)),
)

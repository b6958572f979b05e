package queue

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module provides the producer client. Every binary that enqueues needs it.
var Module = fx.Module("queue",
	fx.Provide(NewClient),
)

// WorkerModule consumes the queues and runs the cron registrations.
var WorkerModule = fx.Module("queue.worker",
	fx.Provide(NewWorker),
	fx.Provide(NewCron),
	fx.Invoke(func(*Worker, *asynq.PeriodicTaskManager) {}),
)

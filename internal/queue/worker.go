package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/config"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"github.com/monstrox/monstro/internal/observability/logger"
	"github.com/monstrox/monstro/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HandlerRegistration binds a task type to its handler. Domain modules
// contribute these to the "queue_handlers" group.
type HandlerRegistration struct {
	TaskType string
	Handler  asynq.Handler
}

// AsHandler annotates a constructor returning a HandlerRegistration for the group.
func AsHandler(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"queue_handlers"`))
}

type WorkerParams struct {
	fx.In

	Lifecycle     fx.Lifecycle
	RedisOpt      asynq.RedisClientOpt
	Jobs          *config.JobsConfigHolder
	Log           *zap.Logger
	Registrations []HandlerRegistration `group:"queue_handlers"`
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *zap.Logger
}

func NewWorker(p WorkerParams) (*Worker, error) {
	jobs := p.Jobs.Get()
	log := p.Log.Named("queue.worker")

	queues := make(map[string]int, len(Queues()))
	for _, name := range Queues() {
		weight := jobs.Policy(name).Priority
		if weight <= 0 {
			weight = 1
		}
		queues[name] = weight
	}

	server := asynq.NewServer(p.RedisOpt, asynq.Config{
		Concurrency:    jobs.Concurrency,
		Queues:         queues,
		RetryDelayFunc: RetryDelayFunc(p.Jobs),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			taskID, _ := asynq.GetTaskID(ctx)
			fields := []zap.Field{
				zap.String("task_type", task.Type()),
				zap.String("task_id", taskID),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			}
			if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
				log.Error("queue.task.dead", fields...)
				return
			}
			log.Warn("queue.task.retry", fields...)
		}),
		Logger:          p.Log.Named("asynq").Sugar(),
		ShutdownTimeout: 20 * time.Second,
	})

	mux := asynq.NewServeMux()
	mux.Use(TaskMiddleware(log))

	seen := make(map[string]bool, len(p.Registrations))
	for _, reg := range p.Registrations {
		if reg.Handler == nil || reg.TaskType == "" {
			continue
		}
		if seen[reg.TaskType] {
			return nil, fmt.Errorf("duplicate queue handler for %s", reg.TaskType)
		}
		seen[reg.TaskType] = true
		mux.Handle(reg.TaskType, reg.Handler)
	}

	w := &Worker{server: server, mux: mux, log: log}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("queue worker starting",
				zap.Int("concurrency", jobs.Concurrency),
				zap.Int("handlers", len(seen)),
			)
			return server.Start(mux)
		},
		OnStop: func(context.Context) error {
			server.Shutdown()
			return nil
		},
	})
	return w, nil
}

// RetryDelayFunc reads the queue policy at retry time so reloaded backoff
// settings apply to tasks already in flight.
func RetryDelayFunc(jobs *config.JobsConfigHolder) asynq.RetryDelayFunc {
	return func(n int, _ error, task *asynq.Task) time.Duration {
		queue, ok := QueueFor(task.Type())
		if !ok {
			return asynq.DefaultRetryDelayFunc(n, nil, task)
		}
		return jobs.Get().Policy(queue).RetryDelay(n)
	}
}

// TaskMiddleware restores the correlation id and records logs and metrics per execution.
func TaskMiddleware(log *zap.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			taskID, _ := asynq.GetTaskID(ctx)
			retried, _ := asynq.GetRetryCount(ctx)
			queue, _ := QueueFor(task.Type())

			if env, err := envelopeOf(task); err == nil && env.CorrelationID != "" {
				ctx = obscontext.WithCorrelationID(ctx, env.CorrelationID)
			}
			ctx = obscontext.WithActor(ctx, "system", "queue:"+task.Type())

			taskLog := logger.WithContext(ctx, log).With(
				zap.String("task_type", task.Type()),
				zap.String("task_id", taskID),
				zap.Int("attempt", retried+1),
			)
			taskLog.Debug("queue.task.start")

			err := next.ProcessTask(ctx, task)

			outcome := metrics.TaskOutcomeSuccess
			switch {
			case err == nil:
			case errors.Is(err, asynq.SkipRetry):
				outcome = metrics.TaskOutcomeSkipRetry
			default:
				outcome = metrics.TaskOutcomeRetry
			}
			duration := time.Since(start)
			metrics.Queue().ObserveProcessed(queue, task.Type(), outcome, duration)

			fields := []zap.Field{zap.String("outcome", outcome), zap.Duration("duration", duration)}
			if err != nil {
				taskLog.Warn("queue.task.finish", append(fields, zap.Error(err))...)
				return err
			}
			taskLog.Info("queue.task.finish", fields...)
			return nil
		})
	}
}

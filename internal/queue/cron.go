package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// cronProvider feeds the periodic task manager from the hot-reloaded jobs
// config, so editing jobs.yml changes registrations on the next sync.
type cronProvider struct {
	jobs *config.JobsConfigHolder
	log  *zap.Logger
}

func (p *cronProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	return periodicConfigs(p.jobs.Get(), p.log), nil
}

func periodicConfigs(jobs config.JobsConfig, log *zap.Logger) []*asynq.PeriodicTaskConfig {
	out := make([]*asynq.PeriodicTaskConfig, 0, len(jobs.Cron))
	for _, entry := range jobs.Cron {
		if !entry.Enabled {
			continue
		}
		queue, ok := QueueFor(entry.Task)
		if !ok {
			log.Warn("cron entry skipped: unknown task", zap.String("name", entry.Name), zap.String("task", entry.Task))
			continue
		}
		body, err := encode("", SweepPayload{TriggeredBy: "cron:" + entry.Name}, time.Time{})
		if err != nil {
			continue
		}
		policy := jobs.Policy(queue)
		out = append(out, &asynq.PeriodicTaskConfig{
			Cronspec: entry.Spec,
			Task:     asynq.NewTask(entry.Task, body),
			Opts: []asynq.Option{
				asynq.Queue(queue),
				asynq.MaxRetry(policy.MaxRetry()),
				// One sweep per window even with several worker replicas.
				asynq.Unique(time.Minute),
			},
		})
	}
	return out
}

type CronParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	RedisOpt  asynq.RedisClientOpt
	Jobs      *config.JobsConfigHolder
	Log       *zap.Logger
}

func NewCron(p CronParams) (*asynq.PeriodicTaskManager, error) {
	log := p.Log.Named("queue.cron")
	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               p.RedisOpt,
		PeriodicTaskConfigProvider: &cronProvider{jobs: p.Jobs, log: log},
		SyncInterval:               time.Minute,
		SchedulerOpts: &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   log.Sugar(),
		},
	})
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("cron scheduler starting", zap.Int("entries", len(p.Jobs.Get().Cron)))
			return mgr.Start()
		},
		OnStop: func(context.Context) error {
			mgr.Shutdown()
			return nil
		},
	})
	return mgr, nil
}

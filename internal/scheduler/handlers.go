package scheduler

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/zap"
)

// NewRecoveryHandler binds the cron-fired subscription recovery sweep.
func NewRecoveryHandler(s *Scheduler) queue.HandlerRegistration {
	return sweepHandler(s, queue.TypeSubscriptionRecoverySweep, s.RunSubscriptionRecovery)
}

// NewOverdueHandler binds the cron-fired overdue invoice sweep.
func NewOverdueHandler(s *Scheduler) queue.HandlerRegistration {
	return sweepHandler(s, queue.TypeInvoiceOverdueSweep, s.RunInvoiceOverdue)
}

func sweepHandler(s *Scheduler, taskType string, run func(context.Context) error) queue.HandlerRegistration {
	return queue.HandlerRegistration{
		TaskType: taskType,
		Handler: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			var payload queue.SweepPayload
			if err := queue.Decode(task, &payload); err != nil {
				return err
			}
			if payload.TriggeredBy != "" {
				s.log.Debug("sweep triggered", zap.String("task_type", taskType), zap.String("triggered_by", payload.TriggeredBy))
			}
			return run(ctx)
		}),
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RenewHandlerParams struct {
	fx.In

	Subscriptions domain.Service
	Log           *zap.Logger
}

// NewRenewHandler runs the delayed subscription:renew task.
func NewRenewHandler(p RenewHandlerParams) queue.HandlerRegistration {
	log := p.Log.Named("subscription.worker")
	return queue.HandlerRegistration{
		TaskType: queue.TypeSubscriptionRenew,
		Handler: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			var payload queue.RenewalPayload
			if err := queue.Decode(task, &payload); err != nil {
				return err
			}
			result, err := p.Subscriptions.Renew(ctx, payload.SubscriptionID, payload.ExpectedPeriodEnd)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidID) {
					return fmt.Errorf("subscription %s: %v: %w", payload.SubscriptionID, err, asynq.SkipRetry)
				}
				return err
			}
			log.Info("renewal processed",
				zap.String("subscription_id", payload.SubscriptionID),
				zap.Bool("renewed", result.Renewed),
				zap.Bool("canceled", result.Canceled),
			)
			return nil
		}),
	}
}

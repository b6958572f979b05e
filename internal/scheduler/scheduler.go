package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/clock"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSubscriptionRecovery = "subscription_recovery"
	JobInvoiceOverdue       = "invoice_overdue"

	lockKeyPrefix = "scheduler:lock:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config
	Queue         queue.Client
	Invoices      invoicedomain.Service
	Subscriptions subscriptiondomain.Service
	Locker        *ratelimit.Locker            `optional:"true"`
	Metrics       *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler runs the cron-triggered billing sweeps. Each sweep holds a Redis
// lock so overlapping cron firings do not double-process.
type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	queue         queue.Client
	invoices      invoicedomain.Service
	subscriptions subscriptiondomain.Service
	locker        *ratelimit.Locker
	metrics       *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Queue == nil || p.Invoices == nil || p.Subscriptions == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		queue:         p.Queue,
		invoices:      p.Invoices,
		subscriptions: p.Subscriptions,
		locker:        p.Locker,
		metrics:       metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	if s.locker == nil {
		return s.runLocked(parent, name, batchSize, timeout, fn)
	}
	err := s.locker.WithLock(parent, lockKeyPrefix+name, s.cfg.LockTTL, func(ctx context.Context) error {
		return s.runLocked(ctx, name, batchSize, timeout, fn)
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Info("scheduler.job.skipped", zap.String("job", name), zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
		return nil
	}
	return err
}

func (s *Scheduler) runLocked(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.beginRun(ctx, name, batchSize)
	log := run.log
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		run.finish(err)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next firing picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunSubscriptionRecovery re-queues renewals for live subscriptions whose
// period ended more than the grace window ago. Renewal task ids are
// deterministic, so a renewal that is still pending is left alone.
func (s *Scheduler) RunSubscriptionRecovery(ctx context.Context) error {
	return s.runJob(ctx, JobSubscriptionRecovery, s.cfg.BatchSize, s.cfg.JobTimeout, s.recoverRenewals)
}

func (s *Scheduler) recoverRenewals(ctx context.Context) error {
	run := runFrom(ctx)
	before := s.clock.Now().Add(-s.cfg.RecoveryGrace)

	var after snowflake.ID
	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		subs, err := s.subscriptions.ListDueForRenewal(ctx, before, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		requeued := 0
		for _, sub := range subs {
			after = sub.ID
			if err := s.subscriptions.EnsureRenewalScheduled(ctx, sub); err != nil {
				run.fail("scheduler.renewal.requeue_failed", sub.LocationID, err,
					zap.String("subscription_id", sub.ID.String()),
				)
				continue
			}
			requeued++
			run.at(sub.LocationID).Info("scheduler.renewal.requeued",
				zap.String("subscription_id", sub.ID.String()),
				zap.Time("period_end", sub.CurrentPeriodEnd),
			)
		}
		run.done(requeued)
		s.metrics.AddBatchProcessed(JobSubscriptionRecovery, "subscriptions", requeued)
		if len(subs) < s.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

// RunInvoiceOverdue moves subscriptions with an unpaid overdue invoice to
// past_due and queues one reminder per invoice. Invoices overdue longer than
// UncollectibleAfter are written off and their subscription canceled.
func (s *Scheduler) RunInvoiceOverdue(ctx context.Context) error {
	return s.runJob(ctx, JobInvoiceOverdue, s.cfg.BatchSize, s.cfg.JobTimeout, s.sweepOverdue)
}

func (s *Scheduler) sweepOverdue(ctx context.Context) error {
	run := runFrom(ctx)
	now := s.clock.Now()

	var after snowflake.ID
	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		invoices, err := s.invoices.ListOverdue(ctx, now, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		processed := 0
		for _, invoice := range invoices {
			after = invoice.ID
			var err error
			if now.Sub(invoice.DueAt) >= s.cfg.UncollectibleAfter {
				err = s.writeOff(ctx, invoice)
			} else {
				err = s.remind(ctx, invoice, now)
			}
			if err != nil {
				run.fail("scheduler.invoice.overdue_failed", invoice.LocationID, err,
					zap.String("invoice_id", invoice.ID.String()),
				)
				continue
			}
			processed++
		}
		run.done(processed)
		s.metrics.AddBatchProcessed(JobInvoiceOverdue, "invoices", processed)
		if len(invoices) < s.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

func (s *Scheduler) remind(ctx context.Context, invoice invoicedomain.Invoice, now time.Time) error {
	if invoice.SubscriptionID != nil {
		if _, err := s.subscriptions.TransitionIf(ctx, *invoice.SubscriptionID, subscriptiondomain.StatusActive, subscriptiondomain.StatusPastDue); err != nil {
			return err
		}
	}
	claimed, err := s.invoices.ClaimOverdueReminder(ctx, invoice.ID, now)
	if err != nil || !claimed {
		return err
	}
	if _, err := s.queue.Schedule(ctx, queue.TypeInvoiceSend, queue.InvoicePayload{InvoiceID: invoice.ID.String()}, now, OverdueReminderTaskID(invoice.ID)); err != nil {
		if rerr := s.invoices.ReleaseOverdueReminder(ctx, invoice.ID); rerr != nil {
			runFrom(ctx).at(invoice.LocationID).Warn("scheduler.invoice.reminder_release_failed",
				zap.String("invoice_id", invoice.ID.String()),
				zap.Error(rerr),
			)
		}
		return err
	}
	return nil
}

func (s *Scheduler) writeOff(ctx context.Context, invoice invoicedomain.Invoice) error {
	if _, err := s.invoices.MarkUncollectible(ctx, invoice.ID.String()); err != nil {
		if errors.Is(err, invoicedomain.ErrNotOpen) {
			return nil
		}
		return err
	}
	if invoice.SubscriptionID == nil {
		return nil
	}
	for _, from := range []string{subscriptiondomain.StatusPastDue, subscriptiondomain.StatusActive} {
		changed, err := s.subscriptions.TransitionIf(ctx, *invoice.SubscriptionID, from, subscriptiondomain.StatusCanceled)
		if err != nil {
			return err
		}
		if changed {
			runFrom(ctx).at(invoice.LocationID).Info("scheduler.subscription.canceled_unpaid",
				zap.String("subscription_id", invoice.SubscriptionID.String()),
				zap.String("invoice_id", invoice.ID.String()),
			)
			break
		}
	}
	return nil
}

// OverdueReminderTaskID keys the single overdue reminder an invoice gets.
func OverdueReminderTaskID(invoiceID snowflake.ID) string {
	return "invoice-overdue:" + invoiceID.String()
}

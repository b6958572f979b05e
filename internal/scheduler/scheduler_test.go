package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env      *testkit.Env
	sched    *Scheduler
	redis    *miniredis.Miniredis
	registry *prometheus.Registry
	sub      subscriptiondomain.Subscription
	invoice  invoicedomain.Invoice
}

func newFixture(t *testing.T) fixture {
	env := testkit.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	registry := prometheus.NewRegistry()

	sched, err := New(Params{
		Log:           env.Log,
		GenID:         env.GenID,
		Clock:         env.Clock,
		Config:        ProvideConfig(env.Config),
		Queue:         env.Queue,
		Invoices:      env.Invoices,
		Subscriptions: env.Subscriptions,
		Locker:        ratelimit.NewLocker(client),
		Metrics:       obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "monstro", Environment: "test"}),
	})
	require.NoError(t, err)

	loc := env.Location(t, "Iron Temple")
	member := env.Member(t, loc, 100, "Nina")
	plan := env.Plan(t, loc, "Unlimited", 8900)
	resp, err := env.Subscriptions.Create(context.Background(), loc.ID.String(), subscriptiondomain.CreateSubscriptionRequest{
		MemberID: member.ID.String(),
		PlanID:   plan.ID.String(),
	})
	require.NoError(t, err)
	env.Queue.Reset()
	return fixture{env: env, sched: sched, redis: mr, registry: registry, sub: resp.Subscription, invoice: resp.Invoice}
}

func (f fixture) subscriptionStatus(t *testing.T) string {
	t.Helper()
	sub, err := f.env.Subscriptions.Get(context.Background(), f.sub.ID.String())
	require.NoError(t, err)
	return sub.Status
}

func (f fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecoveryRequeuesLostRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// inside the grace window nothing is touched
	f.env.Clock.Set(f.sub.CurrentPeriodEnd.Add(5 * time.Minute))
	require.NoError(t, f.sched.RunSubscriptionRecovery(ctx))
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeSubscriptionRenew))

	f.env.Clock.Set(f.sub.CurrentPeriodEnd.Add(time.Hour))
	require.NoError(t, f.sched.RunSubscriptionRecovery(ctx))

	tasks := f.env.Queue.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.RenewalTaskID(f.sub.ID.String(), f.sub.CurrentPeriodEnd), tasks[0].ID)
	var payload queue.RenewalPayload
	require.NoError(t, tasks[0].Decode(&payload))
	assert.Equal(t, f.sub.ID.String(), payload.SubscriptionID)
	assert.WithinDuration(t, f.sub.CurrentPeriodEnd, payload.ExpectedPeriodEnd, 0)

	// a second sweep finds the pending task and adds nothing
	require.NoError(t, f.sched.RunSubscriptionRecovery(ctx))
	assert.Len(t, f.env.Queue.Tasks(queue.TypeSubscriptionRenew), 1)

	assert.Equal(t, float64(2), f.counter(t, "monstro_scheduler_batch_processed_total", map[string]string{
		"job": JobSubscriptionRecovery, "resource": "subscriptions",
	}))
}

func TestRecoveryRevivesArchivedRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := queue.RenewalTaskID(f.sub.ID.String(), f.sub.CurrentPeriodEnd)

	f.env.Clock.Set(f.sub.CurrentPeriodEnd.Add(time.Hour))
	require.NoError(t, f.sched.RunSubscriptionRecovery(ctx))
	require.Len(t, f.env.Queue.Tasks(queue.TypeSubscriptionRenew), 1)

	// every retry failed and the broker archived the task under the same id
	f.env.Queue.Archive(id)
	require.Empty(t, f.env.Queue.Tasks(queue.TypeSubscriptionRenew))

	f.env.Clock.Advance(15 * time.Minute)
	require.NoError(t, f.sched.RunSubscriptionRecovery(ctx))
	tasks := f.env.Queue.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
}

func TestOverdueMarksPastDueAndRemindsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.RunInvoiceOverdue(ctx))
	assert.Equal(t, subscriptiondomain.StatusActive, f.subscriptionStatus(t))

	f.env.Clock.Set(f.invoice.DueAt.Add(24 * time.Hour))
	require.NoError(t, f.sched.RunInvoiceOverdue(ctx))
	assert.Equal(t, subscriptiondomain.StatusPastDue, f.subscriptionStatus(t))

	reminders := f.env.Queue.Tasks(queue.TypeInvoiceSend)
	require.Len(t, reminders, 1)
	assert.Equal(t, OverdueReminderTaskID(f.invoice.ID), reminders[0].ID)
	var payload queue.InvoicePayload
	require.NoError(t, reminders[0].Decode(&payload))
	assert.Equal(t, f.invoice.ID.String(), payload.InvoiceID)

	f.env.Clock.Advance(time.Hour)
	require.NoError(t, f.sched.RunInvoiceOverdue(ctx))
	assert.Len(t, f.env.Queue.Tasks(queue.TypeInvoiceSend), 1)

	invoice, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	require.NotNil(t, invoice.OverdueRemindedAt)
	assert.WithinDuration(t, f.invoice.DueAt.Add(24*time.Hour), *invoice.OverdueRemindedAt, time.Second)
}

func TestOverdueReminderIsNotResentAfterDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.env.Clock.Set(f.invoice.DueAt.Add(24 * time.Hour))
	require.NoError(t, f.sched.RunInvoiceOverdue(ctx))
	require.Len(t, f.env.Queue.Tasks(queue.TypeInvoiceSend), 1)

	// the worker sends it and the broker drops the finished task, freeing its id
	f.env.Queue.Complete(OverdueReminderTaskID(f.invoice.ID))
	require.Empty(t, f.env.Queue.Tasks(queue.TypeInvoiceSend))

	for i := 0; i < 3; i++ {
		f.env.Clock.Advance(24 * time.Hour)
		require.NoError(t, f.sched.RunInvoiceOverdue(ctx))
	}
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeInvoiceSend))
	assert.Equal(t, []string{OverdueReminderTaskID(f.invoice.ID)}, f.env.Queue.Completed())
}

func TestOverdueWritesOffAndCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.env.Clock.Set(f.invoice.DueAt.Add(15 * 24 * time.Hour))
	require.NoError(t, f.sched.RunInvoiceOverdue(ctx))

	invoice, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusUncollectible, invoice.Status)
	assert.Equal(t, subscriptiondomain.StatusCanceled, f.subscriptionStatus(t))
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeInvoiceSend))
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.redis.Set(lockKeyPrefix+JobInvoiceOverdue, "other-runner"))

	f.env.Clock.Set(f.invoice.DueAt.Add(24 * time.Hour))
	require.NoError(t, f.sched.RunInvoiceOverdue(context.Background()))

	assert.Equal(t, subscriptiondomain.StatusActive, f.subscriptionStatus(t))
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeInvoiceSend))
	assert.Equal(t, float64(1), f.counter(t, "monstro_scheduler_job_skipped_total", map[string]string{
		"job": JobInvoiceOverdue, "reason": obsmetrics.SchedulerSkipReasonLockHeld,
	}))

	// the lock is released after a normal run
	f.redis.Del(lockKeyPrefix + JobInvoiceOverdue)
	require.NoError(t, f.sched.RunInvoiceOverdue(context.Background()))
	assert.False(t, f.redis.Exists(lockKeyPrefix+JobInvoiceOverdue))
	assert.Equal(t, subscriptiondomain.StatusPastDue, f.subscriptionStatus(t))
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t)

	err := f.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), f.counter(t, "monstro_scheduler_job_timeouts_total", map[string]string{"job": "timeout_job"}))
	assert.Equal(t, float64(1), f.counter(t, "monstro_scheduler_job_errors_total", map[string]string{
		"job": "timeout_job", "reason": obsmetrics.ReasonDeadlineExceeded,
	}))
}

func TestSweepHandlerDecodesPayload(t *testing.T) {
	f := newFixture(t)
	f.env.Clock.Set(f.invoice.DueAt.Add(24 * time.Hour))

	_, err := f.env.Queue.Enqueue(context.Background(), queue.TypeInvoiceOverdueSweep, queue.SweepPayload{TriggeredBy: "cron:invoice_overdue"})
	require.NoError(t, err)
	task := f.env.Queue.Tasks(queue.TypeInvoiceOverdueSweep)[0]

	reg := NewOverdueHandler(f.sched)
	assert.Equal(t, queue.TypeInvoiceOverdueSweep, reg.TaskType)
	require.NoError(t, reg.Handler.ProcessTask(context.Background(), task.Asynq()))
	assert.Equal(t, subscriptiondomain.StatusPastDue, f.subscriptionStatus(t))
}

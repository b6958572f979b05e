package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/subscription/service"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env    *testkit.Env
	loc    *locationdomain.Location
	member *memberdomain.Member
	plan   *plandomain.Plan
}

func newFixture(t *testing.T) fixture {
	env := testkit.New(t)
	loc := env.Location(t, "Iron Temple")
	return fixture{
		env:    env,
		loc:    loc,
		member: env.Member(t, loc, 100, "Nina"),
		plan:   env.Plan(t, loc, "Unlimited", 8900),
	}
}

func (f fixture) subscribe(t *testing.T) *domain.CreateSubscriptionResponse {
	t.Helper()
	resp, err := f.env.Subscriptions.Create(context.Background(), f.loc.ID.String(), domain.CreateSubscriptionRequest{
		MemberID: f.member.ID.String(),
		PlanID:   f.plan.ID.String(),
	})
	require.NoError(t, err)
	return resp
}

func TestCreateInvoicesAndSchedulesRenewal(t *testing.T) {
	f := newFixture(t)
	resp := f.subscribe(t)
	sub := resp.Subscription

	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Equal(t, testkit.Epoch, sub.CurrentPeriodStart)
	assert.Equal(t, testkit.Epoch.AddDate(0, 1, 0), sub.CurrentPeriodEnd)

	assert.Equal(t, int64(8900), resp.Invoice.Total)
	require.NotNil(t, resp.Invoice.SubscriptionID)
	assert.Equal(t, sub.ID, *resp.Invoice.SubscriptionID)

	renewals := f.env.Queue.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, renewals, 1)
	assert.Equal(t, queue.RenewalTaskID(sub.ID.String(), sub.CurrentPeriodEnd), renewals[0].ID)
	assert.Equal(t, sub.CurrentPeriodEnd, renewals[0].At)

	// no saved card, so the invoice goes out by email
	assert.Len(t, f.env.Queue.Tasks(queue.TypeInvoiceSend), 1)
	assert.Empty(t, f.env.Charger.Charged())

	_, err := f.env.Subscriptions.Create(context.Background(), f.loc.ID.String(), domain.CreateSubscriptionRequest{
		MemberID: f.member.ID.String(),
		PlanID:   f.plan.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
}

func TestCreateChargesSavedCard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Members.SetPaymentMethod(context.Background(), f.member.ID, "pm_card"))

	resp := f.subscribe(t)
	assert.Equal(t, []string{resp.Invoice.ID.String()}, f.env.Charger.Charged())
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeInvoiceSend))
}

func TestCreateFallsBackToEmailWhenChargeFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Members.SetPaymentMethod(context.Background(), f.member.ID, "pm_card"))
	f.env.Charger.Err = errors.New("card_declined")

	f.subscribe(t)
	assert.Len(t, f.env.Charger.Charged(), 1)
	assert.Len(t, f.env.Queue.Tasks(queue.TypeInvoiceSend), 1)
}

func TestCreateFreePlanSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	f.plan = f.env.Plan(t, f.loc, "Trial", 0)

	resp := f.subscribe(t)
	invoice, err := f.env.Invoices.Get(context.Background(), resp.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, invoice.Status)
}

func TestCreateRequiresMembership(t *testing.T) {
	f := newFixture(t)
	outsider := f.env.Member(t, nil, 200, "Omar")

	_, err := f.env.Subscriptions.Create(context.Background(), f.loc.ID.String(), domain.CreateSubscriptionRequest{
		MemberID: outsider.ID.String(),
		PlanID:   f.plan.ID.String(),
	})
	assert.ErrorIs(t, err, memberdomain.ErrNotMember)

	other := f.env.Location(t, "Other Gym")
	foreign := f.env.Plan(t, other, "Elsewhere", 1000)
	_, err = f.env.Subscriptions.Create(context.Background(), f.loc.ID.String(), domain.CreateSubscriptionRequest{
		MemberID: f.member.ID.String(),
		PlanID:   foreign.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrPlanUnavailable)
}

func TestCreateEvaluatesPlanSignupAchievement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.env.Achievements.Create(ctx, f.loc.ID.String(), achievementdomain.CreateAchievementRequest{
		Name: "First plan", Trigger: achievementdomain.TriggerPlanSignup, Requirement: 1, Points: 50,
	})
	require.NoError(t, err)

	f.subscribe(t)

	membership, err := f.env.Members.GetMembership(ctx, f.loc.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), membership.Points)
	require.Len(t, f.env.Notifications.Sent(), 1)
	assert.Equal(t, achievementdomain.WorkflowUnlocked, f.env.Notifications.Sent()[0].Workflow)
}

func TestRenewAdvancesPeriodOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	f.env.Clock.Set(sub.CurrentPeriodEnd)
	result, err := f.env.Subscriptions.Renew(ctx, sub.ID.String(), sub.CurrentPeriodEnd)
	require.NoError(t, err)
	require.True(t, result.Renewed)
	require.NotNil(t, result.Invoice)

	assert.WithinDuration(t, sub.CurrentPeriodEnd, result.Subscription.CurrentPeriodStart, 0)
	assert.WithinDuration(t, testkit.Epoch.AddDate(0, 2, 0), result.Subscription.CurrentPeriodEnd, 0)
	assert.Equal(t, int64(8900), result.Invoice.Total)

	next := queue.RenewalTaskID(sub.ID.String(), result.Subscription.CurrentPeriodEnd)
	var ids []string
	for _, task := range f.env.Queue.Tasks(queue.TypeSubscriptionRenew) {
		ids = append(ids, task.ID)
	}
	assert.Contains(t, ids, next)

	// a duplicate delivery of the same renewal is a no-op
	again, err := f.env.Subscriptions.Renew(ctx, sub.ID.String(), sub.CurrentPeriodEnd)
	require.NoError(t, err)
	assert.False(t, again.Renewed)
	assert.Nil(t, again.Invoice)

	invoices, err := f.env.Invoices.ListByMember(ctx, f.member.ID.String(), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, invoices.Invoices, 2)
}

func TestCancelAtPeriodEndCancelsOnRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	updated, err := f.env.Subscriptions.Cancel(ctx, sub.ID.String(), domain.CancelRequest{AtPeriodEnd: true})
	require.NoError(t, err)
	assert.True(t, updated.CancelAtPeriodEnd)
	assert.Equal(t, domain.StatusActive, updated.Status)

	result, err := f.env.Subscriptions.Renew(ctx, sub.ID.String(), sub.CurrentPeriodEnd)
	require.NoError(t, err)
	assert.True(t, result.Canceled)
	assert.False(t, result.Renewed)
	assert.Equal(t, domain.StatusCanceled, result.Subscription.Status)

	emails := f.env.Queue.Tasks(queue.TypeEmailSend)
	var templates []string
	for _, task := range emails {
		var payload queue.EmailPayload
		require.NoError(t, task.Decode(&payload))
		templates = append(templates, payload.Template)
	}
	assert.Contains(t, templates, email.TemplateSubscriptionCanceled)
}

func TestCancelImmediatelyRemovesRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	canceled, err := f.env.Subscriptions.Cancel(ctx, sub.ID.String(), domain.CancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, []string{sub.RenewalTaskID}, f.env.Queue.Removed())

	_, err = f.env.Subscriptions.Cancel(ctx, sub.ID.String(), domain.CancelRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.env.Subscriptions.Resume(ctx, sub.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	paused, err := f.env.Subscriptions.Pause(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeSubscriptionRenew))

	// the stale renewal, if it still fires, does nothing
	stale, err := f.env.Subscriptions.Renew(ctx, sub.ID.String(), sub.CurrentPeriodEnd)
	require.NoError(t, err)
	assert.False(t, stale.Renewed)

	f.env.Clock.Advance(10 * 24 * time.Hour)
	resumed, err := f.env.Subscriptions.Resume(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	assert.WithinDuration(t, f.env.Clock.Now(), resumed.CurrentPeriodStart, 0)

	renewals := f.env.Queue.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, renewals, 1)
	assert.WithinDuration(t, resumed.CurrentPeriodEnd, renewals[0].At, 0)
}

func TestTransitionIf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	changed, err := f.env.Subscriptions.TransitionIf(ctx, sub.ID, domain.StatusActive, domain.StatusPastDue)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.env.Subscriptions.TransitionIf(ctx, sub.ID, domain.StatusActive, domain.StatusPastDue)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.env.Subscriptions.TransitionIf(ctx, sub.ID, domain.StatusCanceled, domain.StatusActive)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	due, err := f.env.Subscriptions.ListDueForRenewal(ctx, sub.CurrentPeriodEnd.Add(time.Minute), 0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.StatusPastDue, due[0].Status)
}

func TestListByLocationFiltersStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t)

	all, err := f.env.Subscriptions.ListByLocation(ctx, f.loc.ID.String(), domain.ListSubscriptionRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Subscriptions, 1)

	paused, err := f.env.Subscriptions.ListByLocation(ctx, f.loc.ID.String(), domain.ListSubscriptionRequest{Status: domain.StatusPaused})
	require.NoError(t, err)
	assert.Empty(t, paused.Subscriptions)

	_, err = f.env.Subscriptions.ListByMember(ctx, f.member.ID.String(), domain.ListSubscriptionRequest{Status: "zombie"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestRenewHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t).Subscription

	handler := service.NewRenewHandler(service.RenewHandlerParams{Subscriptions: f.env.Subscriptions, Log: f.env.Log})
	tasks := f.env.Queue.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, tasks, 1)
	require.NoError(t, handler.Handler.ProcessTask(ctx, tasks[0].Asynq()))

	got, err := f.env.Subscriptions.Get(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.WithinDuration(t, testkit.Epoch.AddDate(0, 2, 0), got.CurrentPeriodEnd, 0)
}

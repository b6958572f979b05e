package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	"github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/payment/repository"
	"github.com/monstrox/monstro/internal/payment/webhook"
	"github.com/monstrox/monstro/internal/providers/stripe"
	"github.com/monstrox/monstro/internal/queue"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

type fixture struct {
	env     *testkit.Env
	svc     domain.WebhookService
	sub     subscriptiondomain.Subscription
	invoice invoicedomain.Invoice
}

func newFixture(t *testing.T) fixture {
	env := testkit.New(t, &domain.Transaction{})
	cfg := env.Config
	cfg.Stripe.WebhookSecret = secret
	cfg.Stripe.WebhookTolerance = 5 * time.Minute

	svc := webhook.NewService(webhook.Params{
		DB:            env.DB,
		Log:           env.Log,
		GenID:         env.GenID,
		Clock:         env.Clock,
		Config:        cfg,
		Repo:          repository.Provide(),
		Invoices:      env.Invoices,
		Members:       env.Members,
		Subscriptions: env.Subscriptions,
		Emails:        env.Emails,
		AuditSvc:      env.Audit,
	})

	loc := env.Location(t, "Iron Temple")
	member := env.Member(t, loc, 100, "Nina")
	plan := env.Plan(t, loc, "Unlimited", 8900)
	resp, err := env.Subscriptions.Create(context.Background(), loc.ID.String(), subscriptiondomain.CreateSubscriptionRequest{
		MemberID: member.ID.String(),
		PlanID:   plan.ID.String(),
	})
	require.NoError(t, err)
	env.Queue.Reset()
	return fixture{env: env, svc: svc, sub: resp.Subscription, invoice: resp.Invoice}
}

func (f fixture) deliver(t *testing.T, event map[string]any) error {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set(stripe.SignatureHeader, stripe.SignatureHeaderValue(payload, secret, f.env.Clock.Now().Unix()))
	return f.svc.Ingest(context.Background(), payload, headers)
}

func intentEvent(id, eventType string, object map[string]any) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    eventType,
		"created": testkit.Epoch.Unix(),
		"data":    map[string]any{"object": object},
	}
}

func (f fixture) transactions(t *testing.T) []domain.Transaction {
	t.Helper()
	var txns []domain.Transaction
	require.NoError(t, f.env.DB.Order("created_at ASC").Find(&txns).Error)
	return txns
}

func (f fixture) subscriptionStatus(t *testing.T) string {
	t.Helper()
	sub, err := f.env.Subscriptions.Get(context.Background(), f.sub.ID.String())
	require.NoError(t, err)
	return sub.Status
}

func TestSucceededPaysInvoiceAndReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok, err := f.env.Subscriptions.TransitionIf(ctx, f.sub.ID, subscriptiondomain.StatusActive, subscriptiondomain.StatusPastDue)
	require.NoError(t, err)
	require.True(t, ok)

	event := intentEvent("evt_paid", stripe.EventPaymentIntentSucceeded, map[string]any{
		"id":             "pi_1",
		"status":         "succeeded",
		"amount":         8900,
		"currency":       "usd",
		"payment_method": "pm_saved",
		"metadata":       map[string]any{"invoice_id": f.invoice.ID.String()},
	})
	require.NoError(t, f.deliver(t, event))

	invoice, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, invoice.Status)
	assert.Equal(t, subscriptiondomain.StatusActive, f.subscriptionStatus(t))

	member, err := f.env.Members.Get(ctx, invoice.MemberID.String())
	require.NoError(t, err)
	require.NotNil(t, member.StripePaymentMethodID)
	assert.Equal(t, "pm_saved", *member.StripePaymentMethodID)

	emails := f.env.Queue.Tasks(queue.TypeEmailSend)
	require.Len(t, emails, 1)
	var payload queue.EmailPayload
	require.NoError(t, emails[0].Decode(&payload))
	assert.Equal(t, email.TemplatePaymentReceipt, payload.Template)
	assert.Equal(t, invoice.Number, payload.Data["invoice_number"])
	_, err = f.env.Renderer.Render(payload.Template, payload.Data)
	require.NoError(t, err)

	txns := f.transactions(t)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TypePayment, txns[0].Type)
	assert.Equal(t, int64(8900), txns[0].Amount)
	assert.Equal(t, "USD", txns[0].Currency)
	assert.NotNil(t, txns[0].ProcessedAt)

	// redelivery is acknowledged without a second receipt
	require.NoError(t, f.deliver(t, event))
	assert.Len(t, f.env.Queue.Tasks(queue.TypeEmailSend), 1)
	assert.Len(t, f.transactions(t), 1)
}

func TestFailedMarksPastDue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Invoices.SetPaymentIntent(context.Background(), f.invoice.ID.String(), "pi_fail"))

	// no metadata, so the invoice is found by its payment intent
	event := intentEvent("evt_failed", stripe.EventPaymentIntentFailed, map[string]any{
		"id":                 "pi_fail",
		"status":             "requires_payment_method",
		"amount":             8900,
		"currency":           "usd",
		"last_payment_error": map[string]any{"code": "card_declined", "message": "Your card was declined."},
	})
	require.NoError(t, f.deliver(t, event))

	assert.Equal(t, subscriptiondomain.StatusPastDue, f.subscriptionStatus(t))

	emails := f.env.Queue.Tasks(queue.TypeEmailSend)
	require.Len(t, emails, 1)
	var payload queue.EmailPayload
	require.NoError(t, emails[0].Decode(&payload))
	assert.Equal(t, email.TemplatePaymentFailed, payload.Template)
	assert.Equal(t, "Your card was declined.", payload.Data["reason"])
	assert.Equal(t, "https://app.test/invoices/"+f.invoice.ID.String()+"/pay", payload.Data["pay_url"])

	txns := f.transactions(t)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TypeFailure, txns[0].Type)
	assert.Equal(t, "Your card was declined.", txns[0].FailureReason)
}

func TestRefundIsRecorded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Invoices.SetPaymentIntent(context.Background(), f.invoice.ID.String(), "pi_r"))

	require.NoError(t, f.deliver(t, intentEvent("evt_refund", stripe.EventChargeRefunded, map[string]any{
		"id":              "ch_1",
		"amount":          8900,
		"amount_refunded": 4000,
		"currency":        "usd",
		"payment_intent":  "pi_r",
	})))

	txns := f.transactions(t)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TypeRefund, txns[0].Type)
	assert.Equal(t, int64(4000), txns[0].Amount)
	assert.Equal(t, "ch_1", txns[0].ProviderObjectID)
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeEmailSend))
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.deliver(t, intentEvent("evt_other", "customer.created", map[string]any{"id": "cus_1"})))
	require.NoError(t, f.deliver(t, intentEvent("evt_stray", stripe.EventPaymentIntentSucceeded, map[string]any{
		"id": "pi_unknown", "amount": 100, "currency": "usd",
	})))

	assert.Empty(t, f.transactions(t))
	assert.Equal(t, subscriptiondomain.StatusActive, f.subscriptionStatus(t))
}

func TestRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_x","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x"}}}`)

	headers := http.Header{}
	headers.Set(stripe.SignatureHeader, stripe.SignatureHeaderValue(payload, "whsec_wrong", f.env.Clock.Now().Unix()))
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), payload, headers), domain.ErrInvalidSignature)

	stale := f.env.Clock.Now().Add(-10 * time.Minute).Unix()
	headers.Set(stripe.SignatureHeader, stripe.SignatureHeaderValue(payload, secret, stale))
	assert.ErrorIs(t, f.svc.Ingest(context.Background(), payload, headers), domain.ErrInvalidSignature)

	assert.ErrorIs(t, f.svc.Ingest(context.Background(), payload, http.Header{}), domain.ErrInvalidSignature)
}

func TestConcurrentDeliveryDoesNotApplyTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := intentEvent("evt_race", stripe.EventPaymentIntentSucceeded, map[string]any{
		"id":       "pi_race",
		"status":   "succeeded",
		"amount":   8900,
		"currency": "usd",
		"metadata": map[string]any{"invoice_id": f.invoice.ID.String()},
	})

	// another delivery of the same event recorded the row and is still applying it
	started := f.env.Clock.Now().UTC()
	require.NoError(t, f.env.DB.Create(&domain.Transaction{
		ID:                  f.env.GenID.Generate(),
		LocationID:          f.invoice.LocationID,
		MemberID:            f.invoice.MemberID,
		InvoiceID:           f.invoice.ID,
		Provider:            domain.ProviderStripe,
		ProviderEventID:     "evt_race",
		ProviderObjectID:    "pi_race",
		Type:                domain.TypePayment,
		Status:              domain.StatusSucceeded,
		Amount:              8900,
		Currency:            "USD",
		ProcessingStartedAt: &started,
		CreatedAt:           started,
	}).Error)

	require.NoError(t, f.deliver(t, event))
	invoice, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusOpen, invoice.Status)
	assert.Empty(t, f.env.Queue.Tasks(queue.TypeEmailSend))

	// the holder never finished, so its lease lapses and a retry applies the event
	f.env.Clock.Advance(11 * time.Minute)
	require.NoError(t, f.deliver(t, event))
	invoice, err = f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, invoice.Status)
	assert.Len(t, f.env.Queue.Tasks(queue.TypeEmailSend), 1)

	txns := f.transactions(t)
	require.Len(t, txns, 1)
	assert.NotNil(t, txns[0].ProcessedAt)

	require.NoError(t, f.deliver(t, event))
	assert.Len(t, f.env.Queue.Tasks(queue.TypeEmailSend), 1)
}

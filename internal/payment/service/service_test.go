package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/payment/repository"
	"github.com/monstrox/monstro/internal/payment/service"
	"github.com/monstrox/monstro/internal/providers/stripe"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStripe struct {
	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string]string
	// respond writes the reply for a path.
	respond func(w http.ResponseWriter, path string)
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.forms = append(f.forms, form)
	f.mu.Unlock()
	f.respond(w, r.URL.Path)
}

func (f *fakeStripe) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fixture struct {
	env     *testkit.Env
	svc     *service.Service
	stripe  *fakeStripe
	member  *memberdomain.Member
	invoice *invoicedomain.Invoice
}

func newFixture(t *testing.T, respond func(w http.ResponseWriter, path string)) fixture {
	env := testkit.New(t, &domain.Transaction{})
	fake := &fakeStripe{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc := service.NewService(service.Params{
		DB:       env.DB,
		Log:      env.Log,
		Repo:     repository.Provide(),
		Invoices: env.Invoices,
		Members:  env.Members,
		Stripe:   stripe.New("sk_test", srv.URL, srv.Client(), env.Log),
	})

	loc := env.Location(t, "Iron Temple")
	member := env.Member(t, loc, 100, "Nina")
	invoice, err := env.Invoices.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		LocationID: loc.ID,
		MemberID:   member.ID,
		Currency:   "usd",
		Items:      []invoicedomain.ItemRequest{{Description: "Drop-in", Quantity: 1, UnitPrice: 2500}},
	})
	require.NoError(t, err)
	return fixture{env: env, svc: svc, stripe: fake, member: member, invoice: invoice}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestCreatePaymentIntentCreatesCustomerOnce(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		switch path {
		case "/v1/customers":
			writeJSON(w, http.StatusOK, `{"id":"cus_nina"}`)
		case "/v1/payment_intents":
			writeJSON(w, http.StatusOK, `{"id":"pi_app","status":"requires_payment_method","client_secret":"pi_app_secret"}`)
		}
	})
	ctx := context.Background()

	resp, err := f.svc.CreatePaymentIntent(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "pi_app_secret", resp.ClientSecret)
	assert.Equal(t, int64(2500), resp.Amount)
	assert.Equal(t, "USD", resp.Currency)

	require.Equal(t, 2, f.stripe.calls())
	assert.Equal(t, "nina@example.com", f.stripe.forms[0]["email"])
	assert.Equal(t, "member-customer:"+f.member.ID.String(), f.stripe.requests[0].Header.Get("Idempotency-Key"))
	assert.Equal(t, "cus_nina", f.stripe.forms[1]["customer"])
	assert.Equal(t, "off_session", f.stripe.forms[1]["setup_future_usage"])
	assert.Equal(t, f.invoice.ID.String(), f.stripe.forms[1]["metadata[invoice_id]"])

	member, err := f.env.Members.Get(ctx, f.member.ID.String())
	require.NoError(t, err)
	require.NotNil(t, member.StripeCustomerID)
	assert.Equal(t, "cus_nina", *member.StripeCustomerID)

	linked, err := f.env.Invoices.FindByPaymentIntent(ctx, "pi_app")
	require.NoError(t, err)
	assert.Equal(t, f.invoice.ID, linked.ID)

	// the stored customer is reused
	_, err = f.svc.CreatePaymentIntent(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, f.stripe.calls())
}

func TestCreatePaymentIntentRejectsPaidInvoice(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		t.Errorf("unexpected stripe call %s", path)
	})
	_, err := f.env.Invoices.MarkPaid(context.Background(), f.invoice.ID.String(), invoicedomain.MarkPaidRequest{})
	require.NoError(t, err)

	_, err = f.svc.CreatePaymentIntent(context.Background(), f.invoice.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotPayable)
}

func TestChargeInvoiceSettlesOnSuccess(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		writeJSON(w, http.StatusOK, `{"id":"pi_off","status":"succeeded","amount":2500,"currency":"usd"}`)
	})
	ctx := context.Background()
	require.NoError(t, f.env.Members.SetStripeCustomer(ctx, f.member.ID, "cus_nina"))
	require.NoError(t, f.env.Members.SetPaymentMethod(ctx, f.member.ID, "pm_card"))

	require.NoError(t, f.svc.ChargeInvoice(ctx, f.invoice.ID.String()))

	require.Equal(t, 1, f.stripe.calls())
	assert.Equal(t, "pm_card", f.stripe.forms[0]["payment_method"])
	assert.Equal(t, "true", f.stripe.forms[0]["off_session"])
	assert.Equal(t, "invoice-charge:"+f.invoice.ID.String(), f.stripe.requests[0].Header.Get("Idempotency-Key"))

	got, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentIntentID)
	assert.Equal(t, "pi_off", *got.PaymentIntentID)
}

func TestChargeInvoiceDeclined(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		writeJSON(w, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.","payment_intent":{"id":"pi_declined","status":"requires_payment_method"}}}`)
	})
	ctx := context.Background()
	require.NoError(t, f.env.Members.SetStripeCustomer(ctx, f.member.ID, "cus_nina"))
	require.NoError(t, f.env.Members.SetPaymentMethod(ctx, f.member.ID, "pm_card"))

	err := f.svc.ChargeInvoice(ctx, f.invoice.ID.String())
	assert.ErrorIs(t, err, domain.ErrChargeDeclined)

	got, err := f.env.Invoices.Get(ctx, f.invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusOpen, got.Status)
	require.NotNil(t, got.PaymentIntentID)
	assert.Equal(t, "pi_declined", *got.PaymentIntentID)
}

func TestChargeInvoiceNeedsSavedCard(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		t.Errorf("unexpected stripe call %s", path)
	})
	err := f.svc.ChargeInvoice(context.Background(), f.invoice.ID.String())
	assert.ErrorIs(t, err, domain.ErrNoPaymentMethod)
}

func TestChargeInvoiceRequiresAction(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, path string) {
		writeJSON(w, http.StatusOK, `{"id":"pi_3ds","status":"requires_action"}`)
	})
	ctx := context.Background()
	require.NoError(t, f.env.Members.SetStripeCustomer(ctx, f.member.ID, "cus_nina"))
	require.NoError(t, f.env.Members.SetPaymentMethod(ctx, f.member.ID, "pm_card"))

	assert.ErrorIs(t, f.svc.ChargeInvoice(ctx, f.invoice.ID.String()), domain.ErrActionRequired)
}

func TestDisabledStripeIsUnavailable(t *testing.T) {
	env := testkit.New(t, &domain.Transaction{})
	svc := service.NewService(service.Params{
		DB: env.DB, Log: env.Log, Repo: repository.Provide(),
		Invoices: env.Invoices, Members: env.Members,
		Stripe: stripe.New("", "", nil, env.Log),
	})
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 1, "Ola")
	invoice, err := env.Invoices.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		LocationID: loc.ID, MemberID: member.ID, Currency: "usd",
		Items: []invoicedomain.ItemRequest{{Description: "Drop-in", Quantity: 1, UnitPrice: 1000}},
	})
	require.NoError(t, err)

	_, err = svc.CreatePaymentIntent(context.Background(), invoice.ID.String())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/providers/stripe"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// processingLease bounds how long a crashed delivery keeps an event claimed.
const processingLease = 10 * time.Minute

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Repo          paymentdomain.Repository
	Invoices      invoicedomain.Service
	Members       memberdomain.Service
	Subscriptions subscriptiondomain.Service
	Emails        email.Dispatcher
	AuditSvc      auditdomain.Service `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	secret        string
	tolerance     time.Duration
	appURL        string
	repo          paymentdomain.Repository
	invoices      invoicedomain.Service
	members       memberdomain.Service
	subscriptions subscriptiondomain.Service
	emails        email.Dispatcher
	auditSvc      auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		clock:         p.Clock,
		secret:        p.Config.Stripe.WebhookSecret,
		tolerance:     p.Config.Stripe.WebhookTolerance,
		appURL:        strings.TrimRight(p.Config.AppURL, "/"),
		repo:          p.Repo,
		invoices:      p.Invoices,
		members:       p.Members,
		subscriptions: p.Subscriptions,
		emails:        p.Emails,
		auditSvc:      p.AuditSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

// outcome is what an event means for the invoice it references.
type outcome struct {
	txn     paymentdomain.Transaction
	invoice *invoicedomain.Invoice
	intent  *stripe.PaymentIntent
}

// Ingest verifies, records and applies one Stripe event. Unknown event types
// and events that reference no invoice are acknowledged without effect.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) error {
	if err := stripe.VerifySignature(payload, headers.Get(stripe.SignatureHeader), s.secret, s.tolerance, s.clock.Now()); err != nil {
		s.log.Warn("stripe webhook rejected", zap.Error(err))
		return paymentdomain.ErrInvalidSignature
	}
	event, err := stripe.ParseEvent(payload)
	if err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	log := s.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	existing, err := s.repo.FindByEventID(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ProcessedAt != nil {
		log.Debug("stripe event already processed")
		return nil
	}

	out, err := s.interpret(ctx, event)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			log.Debug("stripe event ignored")
			return nil
		}
		return err
	}
	out.txn.Payload = datatypes.JSON(payload)

	stored := existing
	if stored == nil {
		inserted, err := s.repo.Insert(ctx, s.db, &out.txn)
		if err != nil {
			return err
		}
		stored = &out.txn
		if !inserted {
			stored, err = s.repo.FindByEventID(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
			if err != nil {
				return err
			}
			if stored == nil || stored.ProcessedAt != nil {
				return nil
			}
		}
	}

	now := s.clock.Now().UTC()
	claimed, err := s.repo.Claim(ctx, s.db, stored.ID, now, now.Add(-processingLease))
	if err != nil {
		return err
	}
	if !claimed {
		log.Debug("stripe event held by another delivery")
		return nil
	}
	if err := s.apply(ctx, out); err != nil {
		if rerr := s.repo.Release(ctx, s.db, stored.ID); rerr != nil {
			log.Warn("stripe event claim not released", zap.Error(rerr))
		}
		return err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, paymentdomain.ProviderStripe, event.Type)
	log.Info("stripe event processed",
		zap.String("invoice_id", out.invoice.ID.String()),
		zap.String("type", out.txn.Type),
		zap.Int64("amount", out.txn.Amount),
	)
	return nil
}

func (s *Service) interpret(ctx context.Context, event *stripe.Event) (*outcome, error) {
	switch event.Type {
	case stripe.EventPaymentIntentSucceeded, stripe.EventPaymentIntentFailed:
		intent, err := event.PaymentIntent()
		if err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		invoice, err := s.resolveInvoice(ctx, intent.Metadata["invoice_id"], intent.ID)
		if err != nil {
			return nil, err
		}
		txn := s.newTransaction(event, invoice, intent.ID, intent.Amount, intent.Currency)
		if event.Type == stripe.EventPaymentIntentSucceeded {
			txn.Type = paymentdomain.TypePayment
			txn.Status = paymentdomain.StatusSucceeded
		} else {
			txn.Type = paymentdomain.TypeFailure
			txn.Status = paymentdomain.StatusFailed
			if intent.LastPaymentError != nil {
				txn.FailureReason = intent.LastPaymentError.Message
			}
		}
		return &outcome{txn: txn, invoice: invoice, intent: intent}, nil
	case stripe.EventChargeRefunded:
		charge, err := event.Charge()
		if err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		invoice, err := s.resolveInvoice(ctx, charge.Metadata["invoice_id"], charge.PaymentIntent)
		if err != nil {
			return nil, err
		}
		amount := charge.AmountRefunded
		if amount == 0 {
			amount = charge.Amount
		}
		txn := s.newTransaction(event, invoice, charge.ID, amount, charge.Currency)
		txn.Type = paymentdomain.TypeRefund
		txn.Status = paymentdomain.StatusRefunded
		return &outcome{txn: txn, invoice: invoice}, nil
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (s *Service) resolveInvoice(ctx context.Context, invoiceID, paymentIntentID string) (*invoicedomain.Invoice, error) {
	var (
		invoice *invoicedomain.Invoice
		err     error
	)
	if strings.TrimSpace(invoiceID) != "" {
		invoice, err = s.invoices.Get(ctx, invoiceID)
	} else {
		invoice, err = s.invoices.FindByPaymentIntent(ctx, paymentIntentID)
	}
	if errors.Is(err, invoicedomain.ErrNotFound) || errors.Is(err, invoicedomain.ErrInvalidID) {
		s.log.Warn("stripe event references no known invoice",
			zap.String("invoice_id", invoiceID),
			zap.String("payment_intent_id", paymentIntentID),
		)
		return nil, paymentdomain.ErrEventIgnored
	}
	return invoice, err
}

func (s *Service) newTransaction(event *stripe.Event, invoice *invoicedomain.Invoice, objectID string, amount int64, currency string) paymentdomain.Transaction {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = invoice.Currency
	}
	return paymentdomain.Transaction{
		ID:               s.genID.Generate(),
		LocationID:       invoice.LocationID,
		MemberID:         invoice.MemberID,
		InvoiceID:        invoice.ID,
		Provider:         paymentdomain.ProviderStripe,
		ProviderEventID:  event.ID,
		ProviderObjectID: objectID,
		Amount:           amount,
		Currency:         currency,
		CreatedAt:        s.clock.Now().UTC(),
	}
}

func (s *Service) apply(ctx context.Context, out *outcome) error {
	switch out.txn.Type {
	case paymentdomain.TypePayment:
		return s.applySucceeded(ctx, out)
	case paymentdomain.TypeFailure:
		return s.applyFailed(ctx, out)
	case paymentdomain.TypeRefund:
		s.audit(ctx, out, "payment.refunded")
	}
	return nil
}

func (s *Service) applySucceeded(ctx context.Context, out *outcome) error {
	invoice := out.invoice
	log := s.log.With(zap.String("invoice_id", invoice.ID.String()))

	paid, err := s.invoices.MarkPaid(ctx, invoice.ID.String(), invoicedomain.MarkPaidRequest{PaymentIntentID: out.intent.ID})
	switch {
	case err == nil:
		invoice = paid
	case errors.Is(err, invoicedomain.ErrAlreadyPaid):
		if current, getErr := s.invoices.Get(ctx, invoice.ID.String()); getErr == nil {
			invoice = current
		}
	case errors.Is(err, invoicedomain.ErrNotOpen):
		// void or uncollectible; money arrived anyway, staff reconcile it
		log.Warn("payment received for closed invoice", zap.String("status", invoice.Status))
		s.audit(ctx, out, "payment.received_on_closed_invoice")
		return nil
	default:
		return err
	}

	if invoice.SubscriptionID != nil {
		if _, err := s.subscriptions.TransitionIf(ctx, *invoice.SubscriptionID, subscriptiondomain.StatusPastDue, subscriptiondomain.StatusActive); err != nil {
			return err
		}
	}

	member, err := s.members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return err
	}
	if pm := strings.TrimSpace(out.intent.PaymentMethod); pm != "" &&
		(member.StripePaymentMethodID == nil || *member.StripePaymentMethodID != pm) {
		if err := s.members.SetPaymentMethod(ctx, member.ID, pm); err != nil {
			log.Warn("saving payment method failed", zap.Error(err))
		}
	}

	paidAt := s.clock.Now().UTC()
	if invoice.PaidAt != nil {
		paidAt = invoice.PaidAt.UTC()
	}
	s.sendEmail(ctx, member, invoice, email.TemplatePaymentReceipt, map[string]any{
		"first_name":     member.FirstName,
		"amount":         out.txn.Amount,
		"currency":       invoice.Currency,
		"invoice_number": invoice.Number,
		"paid_at":        paidAt.Format(time.RFC3339),
	})
	s.audit(ctx, out, "payment.succeeded")
	return nil
}

func (s *Service) applyFailed(ctx context.Context, out *outcome) error {
	invoice := out.invoice
	if invoice.Status != invoicedomain.StatusOpen {
		return nil
	}
	if invoice.SubscriptionID != nil {
		if _, err := s.subscriptions.TransitionIf(ctx, *invoice.SubscriptionID, subscriptiondomain.StatusActive, subscriptiondomain.StatusPastDue); err != nil {
			return err
		}
	}
	member, err := s.members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return err
	}
	s.sendEmail(ctx, member, invoice, email.TemplatePaymentFailed, map[string]any{
		"first_name":     member.FirstName,
		"amount":         invoice.Total,
		"currency":       invoice.Currency,
		"invoice_number": invoice.Number,
		"reason":         out.txn.FailureReason,
		"pay_url":        s.appURL + "/invoices/" + invoice.ID.String() + "/pay",
	})
	s.audit(ctx, out, "payment.failed")
	return nil
}

func (s *Service) sendEmail(ctx context.Context, member *memberdomain.Member, invoice *invoicedomain.Invoice, template string, data map[string]any) {
	if member.Email == "" {
		return
	}
	err := s.emails.Enqueue(ctx, email.Message{
		To:         member.Email,
		Template:   template,
		Data:       data,
		LocationID: invoice.LocationID.String(),
	})
	if err != nil {
		s.log.Warn("payment email enqueue failed", zap.String("template", template), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, out *outcome, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LocationID: out.invoice.LocationID,
		Action:     action,
		TargetType: "invoice",
		TargetID:   out.invoice.ID.String(),
		Metadata: map[string]any{
			"provider_event_id": out.txn.ProviderEventID,
			"amount":            out.txn.Amount,
			"currency":          out.txn.Currency,
		},
	})
	if err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/providers/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Invoices invoicedomain.Service
	Members  memberdomain.Service
	Stripe   stripe.API
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	invoices invoicedomain.Service
	members  memberdomain.Service
	stripe   stripe.API
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		repo:     p.Repo,
		invoices: p.Invoices,
		members:  p.Members,
		stripe:   p.Stripe,
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, invoiceID string) (*domain.PaymentIntentResponse, error) {
	invoice, err := s.payableInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	member, err := s.members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, member)
	if err != nil {
		return nil, err
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		Amount:      invoice.Total,
		Currency:    invoice.Currency,
		Customer:    customerID,
		Description: "Invoice " + invoice.Number,
		SaveCard:    true,
		Metadata:    intentMetadata(invoice),
	}, "invoice-intent:"+invoice.ID.String())
	if err != nil {
		return nil, providerError(err)
	}
	if err := s.invoices.SetPaymentIntent(ctx, invoice.ID.String(), intent.ID); err != nil {
		return nil, err
	}

	s.log.Info("payment intent created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("payment_intent_id", intent.ID),
	)
	return &domain.PaymentIntentResponse{
		InvoiceID:       invoice.ID.String(),
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          invoice.Total,
		Currency:        invoice.Currency,
	}, nil
}

// ChargeInvoice confirms a payment intent against the saved card. A
// succeeded intent settles the invoice right away; the webhook that follows
// finds it already paid.
func (s *Service) ChargeInvoice(ctx context.Context, invoiceID string) error {
	invoice, err := s.payableInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	member, err := s.members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return err
	}
	if member.StripeCustomerID == nil || member.StripePaymentMethodID == nil ||
		*member.StripeCustomerID == "" || *member.StripePaymentMethodID == "" {
		return domain.ErrNoPaymentMethod
	}

	log := s.log.With(zap.String("invoice_id", invoice.ID.String()), zap.String("member_id", member.ID.String()))
	intent, err := s.stripe.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		Amount:        invoice.Total,
		Currency:      invoice.Currency,
		Customer:      *member.StripeCustomerID,
		PaymentMethod: *member.StripePaymentMethodID,
		Description:   "Invoice " + invoice.Number,
		OffSession:    true,
		Metadata:      intentMetadata(invoice),
	}, "invoice-charge:"+invoice.ID.String())
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.CardDeclined() {
			if stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.ID != "" {
				if setErr := s.invoices.SetPaymentIntent(ctx, invoice.ID.String(), stripeErr.PaymentIntent.ID); setErr != nil {
					log.Warn("payment intent link failed", zap.Error(setErr))
				}
			}
			log.Info("off-session charge declined", zap.String("code", stripeErr.Code), zap.String("decline_code", stripeErr.DeclineCode))
			return fmt.Errorf("%w: %s", domain.ErrChargeDeclined, stripeErr.Message)
		}
		return providerError(err)
	}
	if err := s.invoices.SetPaymentIntent(ctx, invoice.ID.String(), intent.ID); err != nil {
		return err
	}

	switch intent.Status {
	case stripe.IntentSucceeded:
		_, err := s.invoices.MarkPaid(ctx, invoice.ID.String(), invoicedomain.MarkPaidRequest{PaymentIntentID: intent.ID})
		if err != nil && !errors.Is(err, invoicedomain.ErrAlreadyPaid) {
			return err
		}
		log.Info("off-session charge succeeded", zap.String("payment_intent_id", intent.ID))
		return nil
	case stripe.IntentProcessing:
		return nil
	case stripe.IntentRequiresAction:
		return domain.ErrActionRequired
	default:
		return fmt.Errorf("%w: intent %s", domain.ErrChargeDeclined, intent.Status)
	}
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.Transaction, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

func (s *Service) payableInvoice(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	invoice, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.StatusOpen || invoice.Total <= 0 {
		return nil, domain.ErrInvoiceNotPayable
	}
	return invoice, nil
}

func (s *Service) ensureCustomer(ctx context.Context, member *memberdomain.Member) (string, error) {
	if member.StripeCustomerID != nil && *member.StripeCustomerID != "" {
		return *member.StripeCustomerID, nil
	}
	customer, err := s.stripe.CreateCustomer(ctx, stripe.CustomerParams{
		Email:    member.Email,
		Name:     member.FullName(),
		Phone:    derefString(member.Phone),
		Metadata: map[string]string{"member_id": member.ID.String()},
	}, "member-customer:"+member.ID.String())
	if err != nil {
		return "", providerError(err)
	}
	if err := s.members.SetStripeCustomer(ctx, member.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intentMetadata(invoice *invoicedomain.Invoice) map[string]string {
	meta := map[string]string{
		"invoice_id":  invoice.ID.String(),
		"member_id":   invoice.MemberID.String(),
		"location_id": invoice.LocationID.String(),
	}
	if invoice.SubscriptionID != nil {
		meta["subscription_id"] = invoice.SubscriptionID.String()
	}
	return meta
}

func providerError(err error) error {
	if errors.Is(err, stripe.ErrDisabled) {
		return domain.ErrProviderUnavailable
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

package domain

import (
	"context"
	"errors"
	"net/http"
)

type PaymentIntentResponse struct {
	InvoiceID       string `json:"invoice_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type Service interface {
	// CreatePaymentIntent opens a Stripe payment intent the app confirms with
	// the returned client secret. The card is saved for renewals.
	CreatePaymentIntent(ctx context.Context, invoiceID string) (*PaymentIntentResponse, error)
	// ChargeInvoice charges the member's saved payment method off-session.
	ChargeInvoice(ctx context.Context, invoiceID string) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]Transaction, error)
}

// WebhookService ingests signed provider callbacks.
type WebhookService interface {
	Ingest(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvoiceNotPayable   = errors.New("invoice_not_payable")
	ErrNoPaymentMethod     = errors.New("no_saved_payment_method")
	ErrChargeDeclined      = errors.New("charge_declined")
	ErrActionRequired      = errors.New("payment_requires_action")
	ErrProviderUnavailable = errors.New("payment_provider_unavailable")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrEventIgnored        = errors.New("event_ignored")
)

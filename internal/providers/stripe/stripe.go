// Package stripe is a small form-encoded client for the Stripe REST API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.stripe",
	fx.Provide(NewFromConfig),
)

var ErrDisabled = errors.New("stripe_disabled")

const (
	IntentSucceeded             = "succeeded"
	IntentRequiresAction        = "requires_action"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentProcessing            = "processing"
)

// API is the subset of Stripe the payment flows call.
type API interface {
	CreateCustomer(ctx context.Context, params CustomerParams, idempotencyKey string) (*Customer, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error)
}

type CustomerParams struct {
	Email    string
	Name     string
	Phone    string
	Metadata map[string]string
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type PaymentIntentParams struct {
	Amount        int64
	Currency      string
	Customer      string
	PaymentMethod string
	Description   string
	// OffSession confirms the intent immediately against PaymentMethod.
	OffSession bool
	// SaveCard asks Stripe to keep the method for later off-session charges.
	SaveCard bool
	Metadata map[string]string
}

type PaymentIntent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	ClientSecret     string            `json:"client_secret"`
	Customer         string            `json:"customer"`
	PaymentMethod    string            `json:"payment_method"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Error is the decoded Stripe error envelope.
type Error struct {
	StatusCode  int    `json:"-"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	// PaymentIntent is set when a confirmation was declined.
	PaymentIntent *PaymentIntent `json:"payment_intent"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe %d: %s", e.StatusCode, e.Message)
}

// CardDeclined reports a 402 decline, which retrying will not fix.
func (e *Error) CardDeclined() bool {
	return e.StatusCode == http.StatusPaymentRequired || e.Type == "card_error"
}

type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) API {
	return New(cfg.Stripe.SecretKey, cfg.Stripe.BaseURL, &http.Client{Timeout: 20 * time.Second}, log)
}

func New(secretKey, baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log.Named("stripe"),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams, idempotencyKey string) (*Customer, error) {
	form := url.Values{}
	setIf(form, "email", params.Email)
	setIf(form, "name", params.Name)
	setIf(form, "phone", params.Phone)
	setMetadata(form, params.Metadata)

	var out Customer
	if err := c.post(ctx, "/v1/customers", form, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("stripe payment intent: amount must be positive")
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", strings.ToLower(strings.TrimSpace(params.Currency)))
	setIf(form, "customer", params.Customer)
	setIf(form, "description", params.Description)
	if params.OffSession {
		form.Set("payment_method", params.PaymentMethod)
		form.Set("off_session", "true")
		form.Set("confirm", "true")
	} else {
		form.Set("automatic_payment_methods[enabled]", "true")
		if params.SaveCard {
			form.Set("setup_future_usage", "off_session")
		}
	}
	setMetadata(form, params.Metadata)

	var out PaymentIntent
	if err := c.post(ctx, "/v1/payment_intents", form, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	if c.secretKey == "" {
		return ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Error Error `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil || envelope.Error.Message == "" {
			envelope.Error.Message = strings.TrimSpace(string(body))
		}
		envelope.Error.StatusCode = resp.StatusCode
		c.log.Warn("stripe request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", envelope.Error.Code),
			zap.String("request_id", resp.Header.Get("Request-Id")),
		)
		return &envelope.Error
	}
	return json.Unmarshal(body, out)
}

func setIf(form url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		form.Set(key, value)
	}
}

func setMetadata(form url.Values, metadata map[string]string) {
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
}

package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
}

// SendGridProvider calls the v3 mail send API.
type SendGridProvider struct {
	cfg        SendGridConfig
	httpClient *http.Client
}

func NewSendGrid(cfg SendGridConfig, httpClient *http.Client) *SendGridProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	return &SendGridProvider{cfg: cfg, httpClient: httpClient}
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From       sendGridAddress `json:"from"`
	Subject    string          `json:"subject"`
	Content    []sendGridPart  `json:"content"`
	Categories []string        `json:"categories,omitempty"`
}

type sendGridPart struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	req := sendGridRequest{
		From:    sendGridAddress{Email: p.cfg.FromEmail, Name: p.cfg.FromName},
		Subject: msg.Subject,
	}
	to := make([]sendGridAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, sendGridAddress{Email: addr})
	}
	req.Personalizations = append(req.Personalizations, struct {
		To []sendGridAddress `json:"to"`
	}{To: to})
	if msg.Text != "" {
		req.Content = append(req.Content, sendGridPart{Type: "text/plain", Value: msg.Text})
	}
	req.Content = append(req.Content, sendGridPart{Type: "text/html", Value: msg.HTML})
	if msg.Category != "" {
		req.Categories = []string{msg.Category}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return nil
}

// DeliveryError carries the vendor status so callers can decide whether to retry.
type DeliveryError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: status %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

// Permanent reports 4xx responses other than rate limiting.
func (e *DeliveryError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

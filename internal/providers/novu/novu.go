// Package novu triggers notification workflows through the Novu events API.
package novu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/monstrox/monstro/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.novu",
	fx.Provide(NewFromConfig),
)

type Subscriber struct {
	ID        string `json:"subscriberId"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type Triggerer interface {
	Trigger(ctx context.Context, workflowID string, to Subscriber, payload map[string]any) error
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Triggerer {
	return New(cfg.Novu.APIKey, cfg.Novu.BaseURL, &http.Client{Timeout: 10 * time.Second}, log)
}

func New(apiKey, baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log.Named("novu"),
	}
}

type triggerRequest struct {
	Name    string         `json:"name"`
	To      Subscriber     `json:"to"`
	Payload map[string]any `json:"payload"`
}

// Trigger starts a workflow run for one subscriber. Without an API key the
// call is logged and skipped.
func (c *Client) Trigger(ctx context.Context, workflowID string, to Subscriber, payload map[string]any) error {
	if c.apiKey == "" {
		c.log.Debug("novu disabled, trigger skipped", zap.String("workflow", workflowID))
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(triggerRequest{Name: workflowID, To: to, Payload: payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events/trigger", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("novu trigger %s: status %d: %s", workflowID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

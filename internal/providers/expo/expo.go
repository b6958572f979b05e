// Package expo sends push notifications through the Expo push service.
package expo

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

var Module = fx.Module("providers.expo",
	fx.Provide(NewFromConfig),
)

// Expo accepts at most 100 messages per request.
const maxBatch = 100

type PushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// Ticket is the per-message result. Token is filled from the request since
// Expo returns tickets in request order.
type Ticket struct {
	Token   string `json:"-"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

// DeviceNotRegistered reports a token the caller should forget.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Status == "error" && t.Details.Error == "DeviceNotRegistered"
}

type Sender interface {
	Send(ctx context.Context, messages []PushMessage) ([]Ticket, error)
}

type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Sender {
	return New(cfg.Expo.AccessToken, cfg.Expo.BaseURL, &http.Client{Timeout: 10 * time.Second}, log)
}

func New(accessToken, baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		log:         log.Named("expo"),
	}
}

// IsExpoPushToken reports whether token has the ExponentPushToken[...] shape.
func IsExpoPushToken(token string) bool {
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}

// Send skips malformed tokens and batches the rest.
func (c *Client) Send(ctx context.Context, messages []PushMessage) ([]Ticket, error) {
	valid := make([]PushMessage, 0, len(messages))
	for _, msg := range messages {
		if !IsExpoPushToken(msg.To) {
			c.log.Debug("skipping invalid expo token")
			continue
		}
		if msg.Sound == "" {
			msg.Sound = "default"
		}
		valid = append(valid, msg)
	}

	tickets := make([]Ticket, 0, len(valid))
	for start := 0; start < len(valid); start += maxBatch {
		end := start + maxBatch
		if end > len(valid) {
			end = len(valid)
		}
		batch, err := c.sendBatch(ctx, valid[start:end])
		if err != nil {
			return tickets, err
		}
		tickets = append(tickets, batch...)
	}
	return tickets, nil
}

func (c *Client) sendBatch(ctx context.Context, batch []PushMessage) ([]Ticket, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/--/api/v2/push/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Data []Ticket `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("expo push: decode tickets: %w", err)
	}
	for i := range parsed.Data {
		if i < len(batch) {
			parsed.Data[i].Token = batch[i].To
		}
	}
	return parsed.Data, nil
}

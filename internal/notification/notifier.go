// Package notification fans a user-facing event out to push devices and Novu.
package notification

import (
	"context"
	"errors"
	"fmt"

	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/providers/expo"
	"github.com/monstrox/monstro/internal/providers/novu"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notification is addressed to one user. Workflow is the Novu workflow id;
// leave it empty to send push only.
type Notification struct {
	UserID   string
	Email    string
	Title    string
	Body     string
	Workflow string
	Data     map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// TokenStore is implemented by the member service, which owns push tokens.
type TokenStore interface {
	PushTokensForUser(ctx context.Context, userID string) ([]string, error)
	ForgetPushToken(ctx context.Context, token string) error
}

type Params struct {
	fx.In

	Novu    novu.Triggerer
	Push    expo.Sender
	Tokens  TokenStore `optional:"true"`
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type notifier struct {
	novu    novu.Triggerer
	push    expo.Sender
	tokens  TokenStore
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func New(p Params) Notifier {
	return &notifier{
		novu:    p.Novu,
		push:    p.Push,
		tokens:  p.Tokens,
		log:     p.Log.Named("notification"),
		metrics: p.Metrics,
	}
}

func (s *notifier) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return errors.New("notification: missing user id")
	}

	var errs []error
	if err := s.sendPush(ctx, n); err != nil {
		errs = append(errs, fmt.Errorf("push: %w", err))
	}
	if n.Workflow != "" && s.novu != nil {
		payload := map[string]any{"title": n.Title, "body": n.Body}
		for k, v := range n.Data {
			payload[k] = v
		}
		err := s.novu.Trigger(ctx, n.Workflow, novu.Subscriber{ID: n.UserID, Email: n.Email}, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("novu: %w", err))
		} else {
			s.metrics.RecordPushSent(ctx, "novu", 1)
		}
	}
	return errors.Join(errs...)
}

func (s *notifier) sendPush(ctx context.Context, n Notification) error {
	if s.push == nil || s.tokens == nil || n.Title == "" {
		return nil
	}
	tokens, err := s.tokens.PushTokensForUser(ctx, n.UserID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	messages := make([]expo.PushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, expo.PushMessage{To: token, Title: n.Title, Body: n.Body, Data: n.Data})
	}
	tickets, err := s.push.Send(ctx, messages)
	delivered := 0
	for _, ticket := range tickets {
		if ticket.Status == "ok" {
			delivered++
		}
		if !ticket.DeviceNotRegistered() {
			continue
		}
		if ferr := s.tokens.ForgetPushToken(ctx, ticket.Token); ferr != nil {
			s.log.Warn("failed to forget stale push token", zap.Error(ferr))
		}
	}
	s.metrics.RecordPushSent(ctx, "expo", delivered)
	return err
}

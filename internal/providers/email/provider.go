package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrNoRecipients = errors.New("no_recipients")

// Message is a rendered email ready for delivery.
type Message struct {
	To       []string
	Subject  string
	HTML     string
	Text     string
	Category string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider logs instead of delivering. Used for local development.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	p.log.Info("email suppressed",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("category", msg.Category),
	)
	return nil
}

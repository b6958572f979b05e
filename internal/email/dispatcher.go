package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	emailprovider "github.com/monstrox/monstro/internal/providers/email"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidRecipient = errors.New("invalid_recipient")

// Message is a templated email request. Data values must survive JSON.
type Message struct {
	To         string
	Template   string
	Data       map[string]any
	LocationID string
}

// Dispatcher queues templated emails for the worker to render and deliver.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
}

type DispatcherParams struct {
	fx.In

	Queue    queue.Client
	Renderer *Renderer
	Log      *zap.Logger
}

type dispatcher struct {
	queue    queue.Client
	renderer *Renderer
	log      *zap.Logger
}

func NewDispatcher(p DispatcherParams) Dispatcher {
	return &dispatcher{
		queue:    p.Queue,
		renderer: p.Renderer,
		log:      p.Log.Named("email.dispatcher"),
	}
}

func (d *dispatcher) Enqueue(ctx context.Context, msg Message) error {
	to := strings.ToLower(strings.TrimSpace(msg.To))
	if to == "" || !strings.Contains(to, "@") {
		return ErrInvalidRecipient
	}
	if !d.renderer.Has(msg.Template) {
		return ErrUnknownTemplate
	}

	taskID, err := d.queue.Enqueue(ctx, queue.TypeEmailSend, queue.EmailPayload{
		To:         to,
		Template:   msg.Template,
		Data:       msg.Data,
		LocationID: msg.LocationID,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s email: %w", msg.Template, err)
	}
	d.log.Debug("email queued", zap.String("template", msg.Template), zap.String("task_id", taskID))
	return nil
}

type SendHandlerParams struct {
	fx.In

	Renderer *Renderer
	Provider emailprovider.Provider
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// NewSendHandler consumes email:send tasks.
func NewSendHandler(p SendHandlerParams) queue.HandlerRegistration {
	log := p.Log.Named("email.worker")
	return queue.HandlerRegistration{
		TaskType: queue.TypeEmailSend,
		Handler: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			var payload queue.EmailPayload
			if err := queue.Decode(task, &payload); err != nil {
				return err
			}
			if err := deliver(ctx, p.Renderer, p.Provider, payload); err != nil {
				if isPermanent(err) {
					p.Metrics.RecordEmailSent(ctx, payload.Template, p.Provider.Name(), "rejected")
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				}
				p.Metrics.RecordEmailSent(ctx, payload.Template, p.Provider.Name(), "error")
				return err
			}
			p.Metrics.RecordEmailSent(ctx, payload.Template, p.Provider.Name(), "sent")
			log.Info("email sent",
				zap.String("template", payload.Template),
				zap.String("provider", p.Provider.Name()),
				zap.String("location_id", payload.LocationID),
			)
			return nil
		}),
	}
}

func deliver(ctx context.Context, renderer *Renderer, provider emailprovider.Provider, payload queue.EmailPayload) error {
	rendered, err := renderer.Render(payload.Template, payload.Data)
	if err != nil {
		return err
	}
	return provider.Send(ctx, emailprovider.Message{
		To:       []string{payload.To},
		Subject:  rendered.Subject,
		HTML:     rendered.HTML,
		Category: payload.Template,
	})
}

// isPermanent reports failures that will not heal on retry.
func isPermanent(err error) bool {
	if errors.Is(err, ErrUnknownTemplate) || errors.Is(err, ErrMissingField) || errors.Is(err, emailprovider.ErrNoRecipients) {
		return true
	}
	var delivery *emailprovider.DeliveryError
	return errors.As(err, &delivery) && delivery.Permanent()
}

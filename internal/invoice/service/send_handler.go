package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SendHandlerParams struct {
	fx.In

	Invoices  domain.Service
	Locations locationdomain.Service
	Members   memberdomain.Service
	Emails    email.Dispatcher
	Config    config.Config
	Log       *zap.Logger
}

// NewSendHandler turns an invoice:send task into the invoice email.
func NewSendHandler(p SendHandlerParams) queue.HandlerRegistration {
	log := p.Log.Named("invoice.worker")
	return queue.HandlerRegistration{
		TaskType: queue.TypeInvoiceSend,
		Handler: asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			var payload queue.InvoicePayload
			if err := queue.Decode(task, &payload); err != nil {
				return err
			}
			msg, err := invoiceEmail(ctx, p, payload.InvoiceID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidID) ||
					errors.Is(err, memberdomain.ErrNotFound) || errors.Is(err, email.ErrInvalidRecipient) {
					return fmt.Errorf("invoice %s: %v: %w", payload.InvoiceID, err, asynq.SkipRetry)
				}
				return err
			}
			if err := p.Emails.Enqueue(ctx, msg); err != nil {
				return err
			}
			log.Info("invoice email queued", zap.String("invoice_id", payload.InvoiceID))
			return nil
		}),
	}
}

func invoiceEmail(ctx context.Context, p SendHandlerParams, invoiceID string) (email.Message, error) {
	invoice, err := p.Invoices.Get(ctx, invoiceID)
	if err != nil {
		return email.Message{}, err
	}
	member, err := p.Members.Get(ctx, invoice.MemberID.String())
	if err != nil {
		return email.Message{}, err
	}
	if member.Email == "" {
		return email.Message{}, email.ErrInvalidRecipient
	}
	location, err := p.Locations.Get(ctx, invoice.LocationID.String())
	if err != nil {
		return email.Message{}, err
	}

	items := make([]map[string]any, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		items = append(items, map[string]any{"description": item.Description, "amount": item.Amount})
	}
	data := map[string]any{
		"first_name":     member.FirstName,
		"location_name":  location.Name,
		"invoice_number": invoice.Number,
		"currency":       invoice.Currency,
		"total":          invoice.Total,
		"due_at":         invoice.DueAt.Format(time.RFC3339),
		"items":          items,
	}
	if invoice.Status == domain.StatusOpen {
		data["pay_url"] = fmt.Sprintf("%s/invoices/%s/pay", p.Config.AppURL, invoice.ID)
	}
	return email.Message{
		To:         member.Email,
		Template:   email.TemplateInvoice,
		Data:       data,
		LocationID: invoice.LocationID.String(),
	}, nil
}

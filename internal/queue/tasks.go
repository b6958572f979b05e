package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	QueueEmail               = "email"
	QueueInvoice             = "invoice"
	QueueSubscriptionRenewal = "subscription_renewal"
	QueueClassReminders      = "class_reminders"
)

const (
	TypeEmailSend                 = "email:send"
	TypeInvoiceSend               = "invoice:send"
	TypeInvoiceOverdueSweep       = "invoice:overdue_sweep"
	TypeSubscriptionRenew         = "subscription:renew"
	TypeSubscriptionRecoverySweep = "subscription:recovery_sweep"
	TypeClassReminder             = "class:reminder"
)

var taskQueues = map[string]string{
	TypeEmailSend:                 QueueEmail,
	TypeInvoiceSend:               QueueInvoice,
	TypeInvoiceOverdueSweep:       QueueInvoice,
	TypeSubscriptionRenew:         QueueSubscriptionRenewal,
	TypeSubscriptionRecoverySweep: QueueSubscriptionRenewal,
	TypeClassReminder:             QueueClassReminders,
}

// Queues lists every named queue the worker consumes.
func Queues() []string {
	return []string{QueueEmail, QueueInvoice, QueueSubscriptionRenewal, QueueClassReminders}
}

// QueueFor returns the queue a task type is routed to.
func QueueFor(taskType string) (string, bool) {
	q, ok := taskQueues[taskType]
	return q, ok
}

// Envelope wraps every payload so correlation ids survive the trip through Redis.
type Envelope struct {
	CorrelationID string          `json:"correlation_id,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	Data          json.RawMessage `json:"data"`
}

func encode(correlationID string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{CorrelationID: correlationID, EnqueuedAt: now.UTC(), Data: data})
}

func envelopeOf(t *asynq.Task) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Decode unmarshals the task data into v. A malformed payload will never
// succeed on retry so it is wrapped with SkipRetry.
func Decode(t *asynq.Task, v any) error {
	env, err := envelopeOf(t)
	if err != nil {
		return fmt.Errorf("decode %s envelope: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// Payloads

type EmailPayload struct {
	To         string         `json:"to"`
	Template   string         `json:"template"`
	Data       map[string]any `json:"data,omitempty"`
	LocationID string         `json:"location_id,omitempty"`
}

type InvoicePayload struct {
	InvoiceID string `json:"invoice_id"`
}

type RenewalPayload struct {
	SubscriptionID    string    `json:"subscription_id"`
	ExpectedPeriodEnd time.Time `json:"expected_period_end"`
}

type ClassReminderPayload struct {
	ReservationID string `json:"reservation_id"`
}

type SweepPayload struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// RenewalTaskID is deterministic per subscription period so duplicate
// schedules collapse into one task.
func RenewalTaskID(subscriptionID string, periodEnd time.Time) string {
	return fmt.Sprintf("renew:%s:%d", subscriptionID, periodEnd.UTC().Unix())
}

func ReminderTaskID(reservationID string) string {
	return "class-reminder:" + reservationID
}

package testkit

import (
	"context"
	"sync"

	"github.com/monstrox/monstro/internal/notification"
)

// Notifications records every notification instead of sending it.
type Notifications struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *Notifications) Notify(_ context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *Notifications) Sent() []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Notification(nil), n.sent...)
}

// Charger records off-session charge attempts. Err, when set, is returned
// from every call.
type Charger struct {
	mu      sync.Mutex
	Err     error
	charged []string
}

func (c *Charger) ChargeInvoice(_ context.Context, invoiceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charged = append(c.charged, invoiceID)
	return c.Err
}

func (c *Charger) Charged() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.charged...)
}

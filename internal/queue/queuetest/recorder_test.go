package queuetest

import (
	"context"
	"testing"
	"time"

	"github.com/monstrox/monstro/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderDeduplicatesScheduledIDs(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	id, err := r.Schedule(ctx, queue.TypeClassReminder, queue.ClassReminderPayload{ReservationID: "1"}, at, queue.ReminderTaskID("1"))
	require.NoError(t, err)
	_, err = r.Schedule(ctx, queue.TypeClassReminder, queue.ClassReminderPayload{ReservationID: "1"}, at, queue.ReminderTaskID("1"))
	require.NoError(t, err)
	assert.Len(t, r.Tasks(queue.TypeClassReminder), 1)

	require.NoError(t, r.Remove(ctx, queue.QueueClassReminders, id))
	assert.Empty(t, r.Tasks(""))
	assert.Equal(t, []string{id}, r.Removed())
}

func TestRecorderFreesIDOnceCompleted(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	id := "invoice-overdue:42"

	_, err := r.Schedule(ctx, queue.TypeInvoiceSend, queue.InvoicePayload{InvoiceID: "42"}, time.Now(), id)
	require.NoError(t, err)
	r.Complete(id)
	assert.Empty(t, r.Tasks(queue.TypeInvoiceSend))
	assert.Equal(t, []string{id}, r.Completed())

	_, err = r.Schedule(ctx, queue.TypeInvoiceSend, queue.InvoicePayload{InvoiceID: "42"}, time.Now(), id)
	require.NoError(t, err)
	assert.Len(t, r.Tasks(queue.TypeInvoiceSend), 1)
}

func TestRecorderEnsureRevivesArchivedTask(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	at := time.Now()
	id := queue.RenewalTaskID("7", at)

	_, err := r.Ensure(ctx, queue.TypeSubscriptionRenew, queue.RenewalPayload{SubscriptionID: "7"}, at, id)
	require.NoError(t, err)
	r.Archive(id)
	assert.Empty(t, r.Tasks(queue.TypeSubscriptionRenew))

	_, err = r.Schedule(ctx, queue.TypeSubscriptionRenew, queue.RenewalPayload{SubscriptionID: "7"}, at, id)
	require.NoError(t, err)
	assert.Empty(t, r.Tasks(queue.TypeSubscriptionRenew), "schedule leaves an archived task alone")

	_, err = r.Ensure(ctx, queue.TypeSubscriptionRenew, queue.RenewalPayload{SubscriptionID: "7"}, at, id)
	require.NoError(t, err)
	tasks := r.Tasks(queue.TypeSubscriptionRenew)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)

	_, err = r.Ensure(ctx, queue.TypeSubscriptionRenew, queue.RenewalPayload{SubscriptionID: "7"}, at, id)
	require.NoError(t, err)
	assert.Len(t, r.Tasks(queue.TypeSubscriptionRenew), 1, "a pending task is kept")
}

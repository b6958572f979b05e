package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/monstrox/monstro/internal/providers/expo"
	"github.com/monstrox/monstro/internal/providers/novu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTokens struct {
	tokens    []string
	forgotten []string
}

func (f *fakeTokens) PushTokensForUser(context.Context, string) ([]string, error) {
	return f.tokens, nil
}

func (f *fakeTokens) ForgetPushToken(_ context.Context, token string) error {
	f.forgotten = append(f.forgotten, token)
	return nil
}

type fakePush struct {
	sent    []expo.PushMessage
	tickets []expo.Ticket
}

func (f *fakePush) Send(_ context.Context, messages []expo.PushMessage) ([]expo.Ticket, error) {
	f.sent = append(f.sent, messages...)
	return f.tickets, nil
}

type fakeNovu struct {
	workflows []string
	payload   map[string]any
	err       error
}

func (f *fakeNovu) Trigger(_ context.Context, workflowID string, _ novu.Subscriber, payload map[string]any) error {
	f.workflows = append(f.workflows, workflowID)
	f.payload = payload
	return f.err
}

func TestNotifyFansOutAndForgetsStaleTokens(t *testing.T) {
	stale := expo.Ticket{Token: "ExponentPushToken[old]", Status: "error"}
	stale.Details.Error = "DeviceNotRegistered"

	tokens := &fakeTokens{tokens: []string{"ExponentPushToken[new]", "ExponentPushToken[old]"}}
	push := &fakePush{tickets: []expo.Ticket{{Token: "ExponentPushToken[new]", Status: "ok"}, stale}}
	nv := &fakeNovu{}

	n := New(Params{Novu: nv, Push: push, Tokens: tokens, Log: zaptest.NewLogger(t)})
	err := n.Notify(context.Background(), Notification{
		UserID:   "42",
		Title:    "Badge unlocked",
		Body:     "Ten classes!",
		Workflow: "achievement-unlocked",
		Data:     map[string]any{"badge": "ten"},
	})
	require.NoError(t, err)

	assert.Len(t, push.sent, 2)
	assert.Equal(t, []string{"ExponentPushToken[old]"}, tokens.forgotten)
	assert.Equal(t, []string{"achievement-unlocked"}, nv.workflows)
	assert.Equal(t, "ten", nv.payload["badge"])
	assert.Equal(t, "Badge unlocked", nv.payload["title"])
}

func TestNotifyReportsNovuFailure(t *testing.T) {
	nv := &fakeNovu{err: errors.New("down")}
	n := New(Params{Novu: nv, Push: &fakePush{}, Log: zaptest.NewLogger(t)})

	err := n.Notify(context.Background(), Notification{UserID: "1", Workflow: "wf"})
	assert.ErrorContains(t, err, "down")
}

func TestNotifyRequiresUser(t *testing.T) {
	n := New(Params{Log: zaptest.NewLogger(t)})
	assert.Error(t, n.Notify(context.Background(), Notification{}))
}

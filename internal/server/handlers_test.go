package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	"github.com/monstrox/monstro/internal/queue"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupportService struct {
	supportdomain.Service
	sendErr      error
	conversation *supportdomain.Conversation
}

func (f *fakeSupportService) SendMessage(ctx context.Context, userID, conversationID string, req supportdomain.SendMessageRequest) (*supportdomain.SendMessageResponse, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &supportdomain.SendMessageResponse{Message: supportdomain.Message{Content: req.Content}}, nil
}

func (f *fakeSupportService) GetConversation(ctx context.Context, conversationID string) (*supportdomain.Conversation, error) {
	if f.conversation == nil || f.conversation.ID.String() != conversationID {
		return nil, supportdomain.ErrConversationNotFound
	}
	return f.conversation, nil
}

type fakeWebhookService struct {
	err     error
	payload []byte
}

func (f *fakeWebhookService) Ingest(ctx context.Context, payload []byte, headers http.Header) error {
	f.payload = payload
	return f.err
}

type fakeSubscriptionService struct {
	subscriptiondomain.Service
	sub      *subscriptiondomain.Subscription
	canceled bool
}

func (f *fakeSubscriptionService) Get(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	if f.sub == nil || f.sub.ID.String() != id {
		return nil, subscriptiondomain.ErrNotFound
	}
	return f.sub, nil
}

func (f *fakeSubscriptionService) Cancel(ctx context.Context, id string, req subscriptiondomain.CancelRequest) (*subscriptiondomain.Subscription, error) {
	f.canceled = true
	out := *f.sub
	out.Status = subscriptiondomain.StatusCanceled
	return &out, nil
}

type fakeQueue struct {
	queue.Client
	enqueued []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	f.enqueued = append(f.enqueued, taskType)
	return "task-1", nil
}

func TestSendSupportMessageRateLimited(t *testing.T) {
	support := &fakeSupportService{sendErr: &supportdomain.RateLimitError{RetryAfter: 2500 * time.Millisecond}}
	s := newTestServer(t, ServerParams{SupportSvc: support})

	w := doRequest(t, s, http.MethodPost, "/api/support/conversations/77/messages", memberToken, map[string]any{"content": "hi"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, w).Type)
}

func TestSendSupportMessageClosedConversation(t *testing.T) {
	support := &fakeSupportService{sendErr: supportdomain.ErrConversationClosed}
	s := newTestServer(t, ServerParams{SupportSvc: support})

	w := doRequest(t, s, http.MethodPost, "/api/support/conversations/77/messages", memberToken, map[string]any{"content": "hi"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conversation_closed", decodeError(t, w).Code)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	hook := &fakeWebhookService{err: paymentdomain.ErrInvalidSignature}
	s := newTestServer(t, ServerParams{WebhookSvc: hook})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, string(hook.payload))
}

func TestStripeWebhookAccepted(t *testing.T) {
	hook := &fakeWebhookService{}
	s := newTestServer(t, ServerParams{WebhookSvc: hook})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{"id":"evt_2"}`))
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelSubscriptionOwnedByAnotherMember(t *testing.T) {
	subs := &fakeSubscriptionService{sub: &subscriptiondomain.Subscription{
		ID:       snowflake.ID(900),
		MemberID: snowflake.ID(501),
		Status:   subscriptiondomain.StatusActive,
	}}
	s := newTestServer(t, ServerParams{SubscriptionSvc: subs})

	w := doRequest(t, s, http.MethodPost, "/api/protected/subscriptions/900/cancel", memberToken, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, subs.canceled)
}

func TestCancelOwnSubscription(t *testing.T) {
	subs := &fakeSubscriptionService{sub: &subscriptiondomain.Subscription{
		ID:       snowflake.ID(900),
		MemberID: snowflake.ID(500),
		Status:   subscriptiondomain.StatusActive,
	}}
	s := newTestServer(t, ServerParams{SubscriptionSvc: subs})

	w := doRequest(t, s, http.MethodPost, "/api/protected/subscriptions/900/cancel", memberToken, map[string]any{"at_period_end": true})

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, subs.canceled)

	var resp struct {
		Data subscriptiondomain.Subscription `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, subscriptiondomain.StatusCanceled, resp.Data.Status)
}

func TestAdminSubscriptionFromOtherLocationIsHidden(t *testing.T) {
	subs := &fakeSubscriptionService{sub: &subscriptiondomain.Subscription{
		ID:         snowflake.ID(900),
		LocationID: snowflake.ID(43),
		Status:     subscriptiondomain.StatusActive,
	}}
	s := newTestServer(t, ServerParams{SubscriptionSvc: subs})

	w := doRequest(t, s, http.MethodPost, "/api/admin/locations/42/subscriptions/900/cancel", serviceToken, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, subs.canceled)
}

func TestEnqueueSweepJob(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(t, ServerParams{Queue: q})

	w := doRequest(t, s, http.MethodPost, "/api/admin/jobs/subscription-recovery-sweep", serviceToken, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{queue.TypeSubscriptionRecoverySweep}, q.enqueued)

	w = doRequest(t, s, http.MethodPost, "/api/admin/jobs/drop-tables", serviceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type forgetfulAuthService struct {
	*fakeAuthService
	err error
}

func (f *forgetfulAuthService) ForgotPassword(ctx context.Context, email string) error {
	return f.err
}

func TestForgotPasswordAlwaysAccepted(t *testing.T) {
	for _, err := range []error{nil, errors.New("smtp down")} {
		s := newTestServer(t, ServerParams{AuthSvc: &forgetfulAuthService{fakeAuthService: newFakeAuthService(), err: err}})

		w := doRequest(t, s, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Empty(t, w.Body.String())
	}
}

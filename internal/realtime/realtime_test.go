package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/monstrox/monstro/internal/clock"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHubReplaysBufferToLateSubscribers(t *testing.T) {
	hub := NewHub()
	first, backlog, err := hub.Subscribe("chat:1")
	require.NoError(t, err)
	assert.Empty(t, backlog)
	defer first.Close()

	hub.Dispatch("chat:1", Event{Type: "message.created"})
	hub.Dispatch("chat:2", Event{Type: "ignored"})

	select {
	case ev := <-first.Events():
		assert.Equal(t, "message.created", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	second, backlog, err := hub.Subscribe("chat:1")
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, backlog, 1)
}

func TestHubDropsStreamWhenLastSubscriberLeaves(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("group:9")
	require.NoError(t, err)
	hub.Dispatch("group:9", Event{Type: "moment.created"})
	sub.Close()
	sub.Close()

	_, backlog, err := hub.Subscribe("group:9")
	require.NoError(t, err)
	assert.Empty(t, backlog)

	_, _, err = hub.Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestHubNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("support:1")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer*3; i++ {
		hub.Dispatch("support:1", Event{Type: "tick"})
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}

func TestBroadcasterThroughRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)
	hub := NewHub()
	relay := NewRelay(client, hub, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()
	<-ready

	sub, _, err := hub.Subscribe(ChatChannel("42"))
	require.NoError(t, err)
	defer sub.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewBroadcaster(client, clock.NewFakeClock(now), log)
	require.NoError(t, b.Publish(ctx, ChatChannel("42"), "message.created", map[string]string{"content": "hi"}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "message.created", ev.Type)
		assert.Equal(t, "chat:42", ev.Channel)
		assert.True(t, ev.SentAt.Equal(now))
		var payload map[string]string
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, "hi", payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not deliver")
	}
}

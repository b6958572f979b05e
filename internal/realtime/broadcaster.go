package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/monstrox/monstro/internal/clock"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "monstro:realtime:"

// Event is the envelope published to every realtime channel.
type Event struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Publisher is what domain services depend on to push realtime events.
type Publisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// Channel names.
func ChatChannel(chatID string) string { return "chat:" + chatID }
func GroupChannel(groupID string) string { return "group:" + groupID }
func SupportChannel(conversationID string) string { return "support:" + conversationID }

type Broadcaster struct {
	client *redis.Client
	clock  clock.Clock
	log    *zap.Logger
}

func NewBroadcaster(client *redis.Client, clk clock.Clock, log *zap.Logger) *Broadcaster {
	return &Broadcaster{client: client, clock: clk, log: log.Named("realtime.broadcaster")}
}

// Publish sends the event through Redis pub/sub so every API replica's relay sees it.
func (b *Broadcaster) Publish(ctx context.Context, channel, eventType string, payload any) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return ErrInvalidChannel
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal realtime payload: %w", err)
	}
	body, err := json.Marshal(Event{
		Channel: channel,
		Type:    eventType,
		Payload: data,
		SentAt:  b.clock.Now(),
	})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelPrefix+channel, body).Err(); err != nil {
		b.log.Warn("realtime publish failed", zap.String("channel", channel), zap.String("type", eventType), zap.Error(err))
		return err
	}
	return nil
}

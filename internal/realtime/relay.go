package realtime

import (
	"context"
	"encoding/json"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Relay pattern-subscribes to every realtime channel and hands messages to the Hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger
}

func NewRelay(client *redis.Client, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{client: client, hub: hub, log: log.Named("realtime.relay")}
}

// Run blocks until ctx is cancelled. ready is closed once the subscription is active.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Warn("realtime message dropped", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			channel := strings.TrimPrefix(msg.Channel, channelPrefix)
			r.hub.Dispatch(channel, event)
		}
	}
}

func runRelay(lc fx.Lifecycle, relay *Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := relay.Run(ctx, nil); err != nil {
					relay.log.Error("realtime relay stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

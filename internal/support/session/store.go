// Package session keeps the recent chatbot turns of a support conversation in
// Redis so each message does not reload the history from the database.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/providers/openai"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "support:session:"

var ErrUnavailable = errors.New("support_session_unavailable")

// Store holds at most size turns per conversation, expiring after ttl of
// inactivity.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	size   int
}

func NewFromConfig(cfg config.Config, client *redis.Client) *Store {
	return New(client, cfg.Support.SessionTTL, cfg.Support.HistorySize)
}

func New(client *redis.Client, ttl time.Duration, size int) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if size <= 0 {
		size = 20
	}
	return &Store{client: client, ttl: ttl, size: size}
}

func Key(conversationID string) string {
	return keyPrefix + conversationID
}

// Size is the number of turns kept.
func (s *Store) Size() int { return s.size }

// Load returns the stored turns oldest first. ok is false when the session
// has expired or was never written.
func (s *Store) Load(ctx context.Context, conversationID string) ([]openai.Message, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, ErrUnavailable
	}
	raw, err := s.client.LRange(ctx, Key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	msgs := make([]openai.Message, 0, len(raw))
	for _, item := range raw {
		var msg openai.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, false, fmt.Errorf("decode session turn: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

// Append pushes turns, trims to the newest size entries and refreshes the TTL.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...openai.Message) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	key := Key(conversationID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.size), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

// Extend appends only while the session is live, so a partial session is
// never started from the middle of a conversation.
func (s *Store) Extend(ctx context.Context, conversationID string, msgs ...openai.Message) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	n, err := s.client.Exists(ctx, Key(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return nil
	}
	return s.Append(ctx, conversationID, msgs...)
}

func (s *Store) Reset(ctx context.Context, conversationID string) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	return s.client.Del(ctx, Key(conversationID)).Err()
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/monstrox/monstro/pkg/db/pagination"
)

type UpsertAssistantRequest struct {
	Name           string   `json:"name"`
	Instructions   string   `json:"instructions"`
	Model          string   `json:"model"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      int      `json:"max_tokens"`
	TriggerPhrases []string `json:"trigger_phrases"`
	EnabledTools   []string `json:"enabled_tools"`
	Status         string   `json:"status"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse carries the stored member message and, when the bot
// answered or handed off, its reply.
type SendMessageResponse struct {
	Message   Message  `json:"message"`
	Reply     *Message `json:"reply,omitempty"`
	Escalated bool     `json:"escalated"`
}

type ListConversationsRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type ListConversationsResponse struct {
	pagination.PageInfo
	Conversations []Conversation `json:"conversations"`
}

type ReplyRequest struct {
	Content string `json:"content"`
}

type Service interface {
	UpsertAssistant(ctx context.Context, locationID string, req UpsertAssistantRequest) (*Assistant, error)
	GetAssistant(ctx context.Context, locationID string) (*Assistant, error)

	// Member side. userID is the caller's login id.
	StartConversation(ctx context.Context, userID, locationID string) (*Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error)
	SendMessage(ctx context.Context, userID, conversationID string, req SendMessageRequest) (*SendMessageResponse, error)

	// Staff side, scoped to a location.
	ListConversations(ctx context.Context, locationID string, req ListConversationsRequest) (ListConversationsResponse, error)
	ConversationMessages(ctx context.Context, locationID, conversationID string) ([]Message, error)
	Reply(ctx context.Context, locationID, conversationID, staffUserID string, req ReplyRequest) (*Message, error)
	Close(ctx context.Context, locationID, conversationID string) (*Conversation, error)

	// GetConversation loads a conversation without any ownership check.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidContent       = errors.New("invalid_content")
	ErrInvalidAssistant     = errors.New("invalid_assistant")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrAssistantNotFound    = errors.New("assistant_not_found")
	ErrConversationNotFound = errors.New("conversation_not_found")
	ErrConversationClosed   = errors.New("conversation_closed")
	ErrNotLocationMember    = errors.New("not_location_member")
	ErrRateLimited          = errors.New("rate_limited")
)

// RateLimitError is returned when the member's message bucket is empty.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

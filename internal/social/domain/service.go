package domain

import (
	"context"
	"errors"

	"github.com/monstrox/monstro/pkg/db/pagination"
)

type CreateChatRequest struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	LocationID string   `json:"location_id"`
	UserIDs    []string `json:"user_ids"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ListMessagesResponse struct {
	pagination.PageInfo
	Messages []Message `json:"messages"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PostMomentRequest struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls"`
}

type ListMomentsResponse struct {
	pagination.PageInfo
	Moments []Moment `json:"moments"`
}

type ReactRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Emoji      string `json:"emoji"`
}

// ChatSummary is a chat with the caller's unread count.
type ChatSummary struct {
	Chat
	Unread int64 `json:"unread"`
}

// Service methods take the acting user id first; membership checks are done
// against it.
type Service interface {
	CreateChat(ctx context.Context, userID string, req CreateChatRequest) (*Chat, error)
	ListChats(ctx context.Context, userID string) ([]ChatSummary, error)
	SendMessage(ctx context.Context, userID, chatID string, req SendMessageRequest) (*Message, error)
	ListMessages(ctx context.Context, userID, chatID string, page pagination.Pagination) (ListMessagesResponse, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
	MarkRead(ctx context.Context, userID, chatID string) error
	// CheckChatAccess fails unless the user belongs to the chat.
	CheckChatAccess(ctx context.Context, userID, chatID string) error

	CreateGroup(ctx context.Context, userID, locationID string, req CreateGroupRequest) (*Group, error)
	JoinGroup(ctx context.Context, userID, groupID string) (*GroupMember, error)
	LeaveGroup(ctx context.Context, userID, groupID string) error
	ListGroups(ctx context.Context, userID, locationID string) ([]Group, error)
	PostMoment(ctx context.Context, userID, groupID string, req PostMomentRequest) (*Moment, error)
	ListMoments(ctx context.Context, userID, groupID string, page pagination.Pagination) (ListMomentsResponse, error)
	DeleteMoment(ctx context.Context, userID, momentID string) error
	CheckGroupAccess(ctx context.Context, userID, groupID string) error

	React(ctx context.Context, userID string, req ReactRequest) (*Reaction, error)
	Unreact(ctx context.Context, userID string, req ReactRequest) error
	ListReactions(ctx context.Context, userID, targetType, targetID string) ([]ReactionCount, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidKind       = errors.New("invalid_chat_kind")
	ErrInvalidMembers    = errors.New("invalid_chat_members")
	ErrInvalidContent    = errors.New("invalid_content")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidTarget     = errors.New("invalid_reaction_target")
	ErrInvalidEmoji      = errors.New("invalid_emoji")
	ErrChatNotFound      = errors.New("chat_not_found")
	ErrMessageNotFound   = errors.New("message_not_found")
	ErrGroupNotFound     = errors.New("group_not_found")
	ErrMomentNotFound    = errors.New("moment_not_found")
	ErrNotChatMember     = errors.New("not_chat_member")
	ErrNotGroupMember    = errors.New("not_group_member")
	ErrNotLocationMember = errors.New("not_location_member")
	ErrNotAuthor         = errors.New("not_author")
	ErrOwnerCannotLeave  = errors.New("group_owner_cannot_leave")
)

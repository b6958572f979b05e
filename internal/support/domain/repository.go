package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	UpsertAssistant(ctx context.Context, db *gorm.DB, assistant *Assistant) error
	FindAssistant(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (*Assistant, error)

	InsertConversation(ctx context.Context, db *gorm.DB, conv *Conversation) error
	FindConversation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Conversation, error)
	FindActiveConversation(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) (*Conversation, error)
	ListConversations(ctx context.Context, db *gorm.DB, locationID snowflake.ID, status string, page pagination.Pagination) ([]Conversation, error)
	// TransitionConversation moves the conversation to `to` when its status
	// is one of from, and reports whether a row changed.
	TransitionConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, from []string, to string, at time.Time) (bool, error)
	TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	InsertMessage(ctx context.Context, db *gorm.DB, msg *Message) error
	ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) ([]Message, error)
	// RecentMessages returns the newest limit messages of the given roles,
	// oldest first.
	RecentMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, roles []string, limit int) ([]Message, error)
}

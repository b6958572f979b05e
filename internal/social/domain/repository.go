package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertChat(ctx context.Context, db *gorm.DB, chat *Chat, members []ChatMember) error
	FindChat(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Chat, error)
	FindDirectChat(ctx context.Context, db *gorm.DB, key string) (*Chat, error)
	ListChatsForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]ChatSummary, error)
	FindChatMember(ctx context.Context, db *gorm.DB, chatID, userID snowflake.ID) (*ChatMember, error)
	ListChatMemberIDs(ctx context.Context, db *gorm.DB, chatID snowflake.ID) ([]snowflake.ID, error)
	TouchChat(ctx context.Context, db *gorm.DB, chatID snowflake.ID, at time.Time) error
	MarkRead(ctx context.Context, db *gorm.DB, chatID, userID snowflake.ID, at time.Time) error

	InsertMessage(ctx context.Context, db *gorm.DB, msg *Message) error
	FindMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Message, error)
	ListMessages(ctx context.Context, db *gorm.DB, chatID snowflake.ID, page pagination.Pagination) ([]Message, error)
	DeleteMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertGroup(ctx context.Context, db *gorm.DB, group *Group, owner GroupMember) error
	FindGroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Group, error)
	GroupSlugsWithPrefix(ctx context.Context, db *gorm.DB, locationID snowflake.ID, base string) ([]string, error)
	ListGroups(ctx context.Context, db *gorm.DB, locationID snowflake.ID) ([]Group, error)
	FindGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) (*GroupMember, error)
	// UpsertGroupMember inserts the membership and leaves an existing one untouched.
	UpsertGroupMember(ctx context.Context, db *gorm.DB, member *GroupMember) error
	DeleteGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) error

	InsertMoment(ctx context.Context, db *gorm.DB, moment *Moment) error
	FindMoment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Moment, error)
	ListMoments(ctx context.Context, db *gorm.DB, groupID snowflake.ID, page pagination.Pagination) ([]Moment, error)
	DeleteMoment(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// InsertReaction reports whether a new row was written.
	InsertReaction(ctx context.Context, db *gorm.DB, reaction *Reaction) (bool, error)
	FindReaction(ctx context.Context, db *gorm.DB, targetType string, targetID, userID snowflake.ID, emoji string) (*Reaction, error)
	DeleteReaction(ctx context.Context, db *gorm.DB, targetType string, targetID, userID snowflake.ID, emoji string) error
	CountReactions(ctx context.Context, db *gorm.DB, targetType string, targetID snowflake.ID) ([]ReactionCount, error)
}

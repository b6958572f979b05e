package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db"
	"gorm.io/gorm"
)

const (
	ChatDirect = "direct"
	ChatGroup  = "group"
)

const (
	GroupRoleOwner  = "owner"
	GroupRoleMember = "member"
)

const (
	TargetMessage = "message"
	TargetMoment  = "moment"
)

// Realtime event types.
const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
	EventMomentCreated  = "moment.created"
	EventMomentDeleted  = "moment.deleted"
	EventReactionAdded  = "reaction.added"
)

type Chat struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	LocationID *snowflake.ID `gorm:"index" json:"location_id,omitempty"`
	Name       string        `json:"name,omitempty"`
	Kind       string        `gorm:"not null" json:"kind"`
	// DirectKey is "<low user id>:<high user id>" for direct chats so the
	// pair maps to one chat.
	DirectKey     *string      `gorm:"uniqueIndex" json:"-"`
	CreatedBy     snowflake.ID `gorm:"not null" json:"created_by"`
	LastMessageAt *time.Time   `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

type ChatMember struct {
	ChatID     snowflake.ID `gorm:"primaryKey" json:"chat_id"`
	UserID     snowflake.ID `gorm:"primaryKey;index" json:"user_id"`
	JoinedAt   time.Time    `gorm:"not null" json:"joined_at"`
	LastReadAt *time.Time   `json:"last_read_at,omitempty"`
}

func (ChatMember) TableName() string { return "chat_members" }

type Message struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	ChatID    snowflake.ID   `gorm:"not null;index:idx_messages_chat,priority:1" json:"chat_id"`
	SenderID  snowflake.ID   `gorm:"not null" json:"sender_id"`
	Content   string         `gorm:"not null" json:"content"`
	CreatedAt time.Time      `gorm:"not null;index:idx_messages_chat,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string { return "messages" }

type Group struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID  snowflake.ID `gorm:"not null;uniqueIndex:idx_groups_slug,priority:1" json:"location_id"`
	Name        string       `gorm:"not null" json:"name"`
	Slug        string       `gorm:"not null;uniqueIndex:idx_groups_slug,priority:2" json:"slug"`
	Description string       `json:"description,omitempty"`
	CreatedBy   snowflake.ID `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Group) TableName() string { return "social_groups" }

type GroupMember struct {
	GroupID  snowflake.ID `gorm:"primaryKey" json:"group_id"`
	UserID   snowflake.ID `gorm:"primaryKey;index" json:"user_id"`
	Role     string       `gorm:"not null" json:"role"`
	JoinedAt time.Time    `gorm:"not null" json:"joined_at"`
}

func (GroupMember) TableName() string { return "group_members" }

type Moment struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	GroupID   snowflake.ID   `gorm:"not null;index:idx_moments_group,priority:1" json:"group_id"`
	AuthorID  snowflake.ID   `gorm:"not null" json:"author_id"`
	Content   string         `json:"content"`
	MediaURLs db.StringArray `gorm:"column:media_urls" json:"media_urls"`
	CreatedAt time.Time      `gorm:"not null;index:idx_moments_group,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Moment) TableName() string { return "moments" }

type Reaction struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TargetType string       `gorm:"not null;uniqueIndex:idx_reactions_unique,priority:1" json:"target_type"`
	TargetID   snowflake.ID `gorm:"not null;uniqueIndex:idx_reactions_unique,priority:2" json:"target_id"`
	UserID     snowflake.ID `gorm:"not null;uniqueIndex:idx_reactions_unique,priority:3" json:"user_id"`
	Emoji      string       `gorm:"not null;uniqueIndex:idx_reactions_unique,priority:4" json:"emoji"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (Reaction) TableName() string { return "reactions" }

type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int64  `json:"count"`
}

// Models lists the social tables for AutoMigrate in tests.
func Models() []any {
	return []any{&Chat{}, &ChatMember{}, &Message{}, &Group{}, &GroupMember{}, &Moment{}, &Reaction{}}
}

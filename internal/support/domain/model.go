package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/pkg/db"
	"gorm.io/datatypes"
)

const (
	AssistantActive   = "active"
	AssistantDisabled = "disabled"
)

const (
	ConversationOpen      = "open"
	ConversationEscalated = "escalated"
	ConversationClosed    = "closed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleStaff     = "staff"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Tool names the assistant may be allowed to call.
const (
	ToolMemberSubscriptions = "get_member_subscriptions"
	ToolMemberInvoices      = "get_member_invoices"
	ToolUpcomingClasses     = "get_upcoming_classes"
	ToolMemberPoints        = "get_member_points"
	ToolEscalate            = "escalate_to_staff"
)

// AllTools is the full palette in the order it is offered to the model.
var AllTools = []string{
	ToolMemberSubscriptions,
	ToolMemberInvoices,
	ToolUpcomingClasses,
	ToolMemberPoints,
	ToolEscalate,
}

const (
	EventMessageCreated      = "support.message.created"
	EventConversationUpdated = "support.conversation.updated"
)

// Assistant is the per-location chatbot configuration.
type Assistant struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	LocationID     snowflake.ID   `gorm:"not null;uniqueIndex" json:"location_id"`
	Name           string         `gorm:"not null" json:"name"`
	Instructions   string         `json:"instructions"`
	Model          string         `json:"model,omitempty"`
	Temperature    float64        `gorm:"not null;default:0.3" json:"temperature"`
	MaxTokens      int            `gorm:"not null;default:512" json:"max_tokens"`
	TriggerPhrases db.StringArray `gorm:"column:trigger_phrases" json:"trigger_phrases"`
	EnabledTools   db.StringArray `gorm:"column:enabled_tools" json:"enabled_tools"`
	Status         string         `gorm:"not null;default:'active'" json:"status"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Assistant) TableName() string { return "support_assistants" }

// ToolEnabled reports whether name is in the assistant's palette.
func (a Assistant) ToolEnabled(name string) bool {
	for _, t := range a.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

type Conversation struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	LocationID  snowflake.ID  `gorm:"not null;index:idx_support_conversations_location,priority:1" json:"location_id"`
	MemberID    snowflake.ID  `gorm:"not null;index" json:"member_id"`
	AssistantID *snowflake.ID `json:"assistant_id,omitempty"`
	Status      string        `gorm:"not null;index:idx_support_conversations_location,priority:2" json:"status"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
}

func (Conversation) TableName() string { return "support_conversations" }

type Message struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	ConversationID snowflake.ID      `gorm:"not null;index:idx_support_messages_conversation,priority:1" json:"conversation_id"`
	Role           string            `gorm:"not null" json:"role"`
	Content        string            `json:"content"`
	ToolName       string            `json:"tool_name,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index:idx_support_messages_conversation,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "support_messages" }

// Models lists the support tables for AutoMigrate in tests.
func Models() []any {
	return []any{&Assistant{}, &Conversation{}, &Message{}}
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TriggerCheckInCount     = "check_in_count"
	TriggerReservationCount = "reservation_count"
	TriggerPlanSignup       = "plan_signup"
	TriggerPointsTotal      = "points_total"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// WorkflowUnlocked is the Novu workflow triggered when a member completes an achievement.
const WorkflowUnlocked = "achievement-unlocked"

type Achievement struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	LocationID  snowflake.ID `gorm:"not null;index:idx_achievements_trigger,priority:1" json:"location_id"`
	Name        string       `gorm:"not null" json:"name"`
	Description string       `json:"description,omitempty"`
	Badge       string       `json:"badge,omitempty"`
	Trigger     string       `gorm:"column:trigger_type;not null;index:idx_achievements_trigger,priority:2" json:"trigger"`
	Requirement int64        `gorm:"not null" json:"requirement"`
	Points      int64        `gorm:"not null;default:0" json:"points"`
	Status      string       `gorm:"not null;default:'active'" json:"status"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Achievement) TableName() string { return "achievements" }

type MemberAchievement struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	AchievementID snowflake.ID `gorm:"not null;uniqueIndex:idx_member_achievement,priority:1" json:"achievement_id"`
	MemberID      snowflake.ID `gorm:"not null;uniqueIndex:idx_member_achievement,priority:2" json:"member_id"`
	LocationID    snowflake.ID `gorm:"not null;index" json:"location_id"`
	Progress      int64        `gorm:"not null;default:0" json:"progress"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (MemberAchievement) TableName() string { return "member_achievements" }

// MemberProgress is an achievement as seen by one member.
type MemberProgress struct {
	Achievement
	Progress    int64      `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

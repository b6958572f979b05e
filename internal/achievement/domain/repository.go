package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, achievement *Achievement) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Achievement, error)
	List(ctx context.Context, db *gorm.DB, locationID snowflake.ID, status string) ([]Achievement, error)
	ListActiveByTrigger(ctx context.Context, db *gorm.DB, locationID snowflake.ID, trigger string) ([]Achievement, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error

	// UpsertProgress records progress unless the row is already completed.
	UpsertProgress(ctx context.Context, db *gorm.DB, progress *MemberAchievement) error
	// Complete stamps completed_at only when it is still NULL and reports
	// whether this call was the one that did it.
	Complete(ctx context.Context, db *gorm.DB, achievementID, memberID snowflake.ID, at time.Time) (bool, error)
	// AwardPoints credits an active membership and reports rows changed.
	AwardPoints(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, points int64) (int64, error)
	ListForMember(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) ([]MemberAchievement, error)

	// Metric computes the member's current value for a trigger.
	Metric(ctx context.Context, db *gorm.DB, trigger string, locationID, memberID snowflake.ID) (int64, error)
}

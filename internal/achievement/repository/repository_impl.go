package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, achievement *domain.Achievement) error {
	return db.WithContext(ctx).Create(achievement).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Achievement, error) {
	var achievement domain.Achievement
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&achievement).Error; err != nil {
		return nil, err
	}
	if achievement.ID == 0 {
		return nil, nil
	}
	return &achievement, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, locationID snowflake.ID, status string) ([]domain.Achievement, error) {
	stmt := db.WithContext(ctx).Where("location_id = ?", locationID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	var items []domain.Achievement
	err := stmt.Order("requirement ASC").Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) ListActiveByTrigger(ctx context.Context, db *gorm.DB, locationID snowflake.ID, trigger string) ([]domain.Achievement, error) {
	var items []domain.Achievement
	err := db.WithContext(ctx).
		Where("location_id = ? AND trigger_type = ? AND status = ?", locationID, trigger, domain.StatusActive).
		Order("requirement ASC").Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Achievement{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) UpsertProgress(ctx context.Context, db *gorm.DB, progress *domain.MemberAchievement) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "achievement_id"}, {Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "member_achievements.completed_at IS NULL"},
		}},
	}).Create(progress).Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, achievementID, memberID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.MemberAchievement{}).
		Where("achievement_id = ? AND member_id = ? AND completed_at IS NULL", achievementID, memberID).
		Updates(map[string]any{"completed_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AwardPoints(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, points int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE member_locations
		 SET points = points + ?
		 WHERE location_id = ? AND member_id = ? AND status = ?`,
		points,
		locationID,
		memberID,
		memberdomain.MembershipActive,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListForMember(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) ([]domain.MemberAchievement, error) {
	var items []domain.MemberAchievement
	err := db.WithContext(ctx).
		Where("location_id = ? AND member_id = ?", locationID, memberID).
		Find(&items).Error
	return items, err
}

func (r *repo) Metric(ctx context.Context, db *gorm.DB, trigger string, locationID, memberID snowflake.ID) (int64, error) {
	var query string
	switch trigger {
	case domain.TriggerCheckInCount:
		query = `SELECT COUNT(*) FROM reservations WHERE location_id = ? AND member_id = ? AND status = 'attended'`
	case domain.TriggerReservationCount:
		query = `SELECT COUNT(*) FROM reservations WHERE location_id = ? AND member_id = ? AND status IN ('confirmed', 'attended')`
	case domain.TriggerPlanSignup:
		query = `SELECT COUNT(*) FROM subscriptions WHERE location_id = ? AND member_id = ?`
	case domain.TriggerPointsTotal:
		query = `SELECT COALESCE(MAX(points), 0) FROM member_locations WHERE location_id = ? AND member_id = ?`
	default:
		return 0, fmt.Errorf("unknown trigger %q", trigger)
	}
	var value int64
	if err := db.WithContext(ctx).Raw(query, locationID, memberID).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Member, error) {
	return r.findOne(ctx, db, "user_id = ?", userID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Member, error) {
	var member domain.Member
	if err := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&member).Error; err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Member{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) InsertMembership(ctx context.Context, db *gorm.DB, membership *domain.MemberLocation) error {
	return db.WithContext(ctx).Create(membership).Error
}

func (r *repo) FindMembership(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) (*domain.MemberLocation, error) {
	var membership domain.MemberLocation
	err := db.WithContext(ctx).
		Where("location_id = ? AND member_id = ?", locationID, memberID).
		Limit(1).
		Find(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.MemberID == 0 {
		return nil, nil
	}
	return &membership, nil
}

func (r *repo) UpdateMembershipStatus(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, status string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.MemberLocation{}).
		Where("location_id = ? AND member_id = ?", locationID, memberID).
		Update("status", status)
	return res.RowsAffected, res.Error
}

func (r *repo) ListByLocation(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.MemberSummary, error) {
	stmt := db.WithContext(ctx).
		Table("members").
		Select("members.*, member_locations.status AS membership_status, member_locations.points, member_locations.joined_at").
		Joins("JOIN member_locations ON member_locations.member_id = members.id").
		Where("member_locations.location_id = ?", filter.LocationID)
	if filter.Status != "" {
		stmt = stmt.Where("member_locations.status = ?", filter.Status)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		stmt = stmt.Where(
			"LOWER(members.first_name) LIKE ? OR LOWER(members.last_name) LIKE ? OR LOWER(members.email) LIKE ?",
			like, like, like,
		)
	}
	stmt, err := pagination.Apply(stmt, page, "members")
	if err != nil {
		return nil, err
	}

	var rows []domain.MemberSummary
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) IncrementPoints(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, delta int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE member_locations
		 SET points = points + ?
		 WHERE location_id = ? AND member_id = ? AND status = ?`,
		delta,
		locationID,
		memberID,
		domain.MembershipActive,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpsertPushToken(ctx context.Context, db *gorm.DB, token *domain.PushToken) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(token).Error
}

func (r *repo) ListPushTokens(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.PushToken, error) {
	var tokens []domain.PushToken
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&tokens).Error
	return tokens, err
}

func (r *repo) DeletePushToken(ctx context.Context, db *gorm.DB, token string) error {
	return db.WithContext(ctx).Where("token = ?", token).Delete(&domain.PushToken{}).Error
}

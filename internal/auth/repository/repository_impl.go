package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return findOne(ctx, db, "id = ?", id)
}

// FindByEmail matches case-insensitively. Emails are stored lowercased.
func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return findOne(ctx, db, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{ID: id}).Updates(fields)
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return domain.ErrUserNotFound
	}
	return nil
}

// findOne returns nil, nil when no user matches.
func findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where(cond, arg).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

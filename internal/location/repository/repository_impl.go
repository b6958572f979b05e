package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/location/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, location *domain.Location) error {
	return db.WithContext(ctx).Create(location).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Location, error) {
	var location domain.Location
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&location).Error
	if err != nil {
		return nil, err
	}
	if location.ID == 0 {
		return nil, nil
	}
	return &location, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Location, error) {
	var location domain.Location
	err := db.WithContext(ctx).Where("slug = ?", slug).Limit(1).Find(&location).Error
	if err != nil {
		return nil, err
	}
	if location.ID == 0 {
		return nil, nil
	}
	return &location, nil
}

func (r *repo) SlugsWithPrefix(ctx context.Context, db *gorm.DB, base string) ([]string, error) {
	var slugs []string
	err := db.WithContext(ctx).
		Model(&domain.Location{}).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &slugs).Error
	return slugs, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Location, error) {
	stmt := db.WithContext(ctx).Model(&domain.Location{})
	if filter.StaffUserID != 0 {
		stmt = stmt.Where("locations.id IN (SELECT location_id FROM location_staff WHERE user_id = ?)", filter.StaffUserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("locations.status = ?", filter.Status)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(locations.name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	stmt, err := pagination.Apply(stmt, page, "locations")
	if err != nil {
		return nil, err
	}

	var locations []*domain.Location
	if err := stmt.Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Location{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpsertStaff also lifts a plain user account to the staff role so the admin
// API admits it. Admin accounts keep their role.
func (r *repo) UpsertStaff(ctx context.Context, db *gorm.DB, staff *domain.LocationStaff) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(staff).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Table(authdomain.User{}.TableName()).
		Where("id = ? AND role = ?", staff.UserID, authdomain.RoleUser).
		Update("role", authdomain.RoleStaff).Error
}

func (r *repo) FindStaff(ctx context.Context, db *gorm.DB, locationID, userID snowflake.ID) (*domain.LocationStaff, error) {
	var staff domain.LocationStaff
	err := db.WithContext(ctx).
		Where("location_id = ? AND user_id = ?", locationID, userID).
		Limit(1).
		Find(&staff).Error
	if err != nil {
		return nil, err
	}
	if staff.UserID == 0 {
		return nil, nil
	}
	return &staff, nil
}

func (r *repo) ListStaff(ctx context.Context, db *gorm.DB, locationID snowflake.ID) ([]domain.LocationStaff, error) {
	var staff []domain.LocationStaff
	err := db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("created_at ASC").
		Find(&staff).Error
	return staff, err
}

func (r *repo) DeleteStaff(ctx context.Context, db *gorm.DB, locationID, userID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Where("location_id = ? AND user_id = ?", locationID, userID).
		Delete(&domain.LocationStaff{})
	return res.RowsAffected, res.Error
}

func (r *repo) CountOwners(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.LocationStaff{}).
		Where("location_id = ? AND role = ?", locationID, domain.StaffOwner).
		Count(&count).Error
	return count, err
}

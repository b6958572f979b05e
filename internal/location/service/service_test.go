package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/location/domain"
	"github.com/monstrox/monstro/internal/location/repository"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	svc, _ := newTestServiceWithDB(t)
	return svc
}

func newTestServiceWithDB(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	conn := dbtest.New(t, &authdomain.User{}, &domain.Location{}, &domain.LocationStaff{})
	return New(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}), conn
}

func TestCreateMakesCreatorOwnerAndDedupesSlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "100", domain.CreateLocationRequest{Name: "Iron Temple Gym", Timezone: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, "iron-temple-gym", first.Slug)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, domain.StatusActive, first.Status)

	second, err := svc.Create(ctx, "100", domain.CreateLocationRequest{Name: "Iron  Temple gym!"})
	require.NoError(t, err)
	assert.Equal(t, "iron-temple-gym-2", second.Slug)

	third, err := svc.Create(ctx, "101", domain.CreateLocationRequest{Name: "Iron Temple Gym"})
	require.NoError(t, err)
	assert.Equal(t, "iron-temple-gym-3", third.Slug)

	staff, err := svc.ListStaff(ctx, first.ID.String())
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, snowflake.ID(100), staff[0].UserID)
	assert.Equal(t, domain.StaffOwner, staff[0].Role)

	found, err := svc.GetBySlug(ctx, "IRON-TEMPLE-GYM-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "1", domain.CreateLocationRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, "1", domain.CreateLocationRequest{Name: "Gym", Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)

	_, err = svc.Create(ctx, "1", domain.CreateLocationRequest{Name: "Gym", Currency: "dollars"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	_, err = svc.Create(ctx, "nope", domain.CreateLocationRequest{Name: "Gym"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestUpdateAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	loc, err := svc.Create(ctx, "7", domain.CreateLocationRequest{Name: "Downtown"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "8", domain.CreateLocationRequest{Name: "Uptown"})
	require.NoError(t, err)

	inactive := "inactive"
	currency := "eur"
	updated, err := svc.Update(ctx, loc.ID.String(), domain.UpdateLocationRequest{Status: &inactive, Currency: &currency})
	require.NoError(t, err)
	assert.Equal(t, "EUR", updated.Currency)
	assert.Equal(t, domain.StatusInactive, updated.Status)

	bogus := "closed"
	_, err = svc.Update(ctx, loc.ID.String(), domain.UpdateLocationRequest{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	mine, err := svc.List(ctx, domain.ListLocationRequest{StaffUserID: "7"})
	require.NoError(t, err)
	require.Len(t, mine.Locations, 1)
	assert.Equal(t, loc.ID, mine.Locations[0].ID)

	active, err := svc.List(ctx, domain.ListLocationRequest{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active.Locations, 1)
	assert.Equal(t, "Uptown", active.Locations[0].Name)

	paged, err := svc.List(ctx, domain.ListLocationRequest{Pagination: pagination.Pagination{PageSize: 1}})
	require.NoError(t, err)
	assert.Len(t, paged.Locations, 1)
	assert.True(t, paged.HasMore)
}

func TestStaffManagementKeepsAnOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	loc, err := svc.Create(ctx, "1", domain.CreateLocationRequest{Name: "Harbor"})
	require.NoError(t, err)
	id := loc.ID.String()

	_, err = svc.AddStaff(ctx, id, domain.AddStaffRequest{UserID: "2", Role: "coach"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = svc.AddStaff(ctx, id, domain.AddStaffRequest{UserID: "1", Role: domain.StaffAdmin})
	assert.ErrorIs(t, err, domain.ErrLastOwner)
	assert.ErrorIs(t, svc.RemoveStaff(ctx, id, "1"), domain.ErrLastOwner)

	staff, err := svc.AddStaff(ctx, id, domain.AddStaffRequest{UserID: "2", Role: "Staff"})
	require.NoError(t, err)
	assert.Equal(t, domain.StaffStaff, staff.Role)

	// promote, then the original owner may step down
	_, err = svc.AddStaff(ctx, id, domain.AddStaffRequest{UserID: "2", Role: domain.StaffOwner})
	require.NoError(t, err)
	require.NoError(t, svc.RemoveStaff(ctx, id, "1"))

	list, err := svc.ListStaff(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snowflake.ID(2), list[0].UserID)

	assert.ErrorIs(t, svc.RemoveStaff(ctx, id, "99"), domain.ErrStaffNotFound)
}

func TestStaffGrantLiftsUserRole(t *testing.T) {
	svc, conn := newTestServiceWithDB(t)
	ctx := context.Background()

	require.NoError(t, conn.Create(&authdomain.User{ID: 7, Email: "coach@example.com", Role: authdomain.RoleUser}).Error)
	require.NoError(t, conn.Create(&authdomain.User{ID: 8, Email: "root@example.com", Role: authdomain.RoleAdmin}).Error)

	loc, err := svc.Create(ctx, "8", domain.CreateLocationRequest{Name: "Dockside"})
	require.NoError(t, err)
	_, err = svc.AddStaff(ctx, loc.ID.String(), domain.AddStaffRequest{UserID: "7", Role: domain.StaffStaff})
	require.NoError(t, err)

	var coach, root authdomain.User
	require.NoError(t, conn.First(&coach, 7).Error)
	require.NoError(t, conn.First(&root, 8).Error)
	assert.Equal(t, authdomain.RoleStaff, coach.Role)
	assert.Equal(t, authdomain.RoleAdmin, root.Role)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	auditrepo "github.com/monstrox/monstro/internal/audit/repository"
	auditsvc "github.com/monstrox/monstro/internal/audit/service"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/clock"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	locationrepo "github.com/monstrox/monstro/internal/location/repository"
	locationsvc "github.com/monstrox/monstro/internal/location/service"
	"github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/plan/repository"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *locationdomain.Location, *gorm.DB) {
	t.Helper()
	conn := dbtest.New(t, &authdomain.User{}, &locationdomain.Location{}, &locationdomain.LocationStaff{}, &domain.Plan{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	audit := auditsvc.NewService(auditsvc.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide()})
	locations := locationsvc.New(locationsvc.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: locationrepo.Provide()})
	loc, err := locations.Create(context.Background(), "1", locationdomain.CreateLocationRequest{Name: "Plan Gym", Currency: "cad"})
	require.NoError(t, err)

	svc := New(Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: repository.Provide(), Locations: locations, AuditSvc: audit})
	return svc, loc, conn
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	svc, loc, conn := setup(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Unlimited", Price: 8900})
	require.NoError(t, err)
	assert.Equal(t, "CAD", plan.Currency)
	assert.Equal(t, domain.IntervalMonth, plan.Interval)
	assert.Equal(t, 1, plan.IntervalCount)

	_, err = svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Bad", Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Bad", Interval: "fortnight"})
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
	_, err = svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Bad", IntervalCount: -2})
	assert.ErrorIs(t, err, domain.ErrInvalidIntervalCount)
	_, err = svc.Create(ctx, "12345", domain.CreatePlanRequest{Name: "Orphan"})
	assert.ErrorIs(t, err, locationdomain.ErrNotFound)

	var audits int64
	require.NoError(t, conn.Model(&auditdomain.AuditLog{}).Where("action = ?", "plan.created").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestListHidesArchivedByDefault(t *testing.T) {
	svc, loc, _ := setup(t)
	ctx := context.Background()

	basic, err := svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Basic", Price: 2900})
	require.NoError(t, err)
	_, err = svc.Create(ctx, loc.ID.String(), domain.CreatePlanRequest{Name: "Drop-in", Price: 1500, Interval: "day"})
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, basic.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	_, err = svc.Update(ctx, basic.ID.String(), domain.UpdatePlanRequest{})
	assert.ErrorIs(t, err, domain.ErrArchived)

	active, err := svc.List(ctx, loc.ID.String(), "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Drop-in", active[0].Name)

	all, err := svc.List(ctx, loc.ID.String(), "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdatePrice(t *testing.T) {
	svc, loc, _ := setup(t)
	plan, err := svc.Create(context.Background(), loc.ID.String(), domain.CreatePlanRequest{Name: "Pro", Price: 100})
	require.NoError(t, err)

	price := int64(12000)
	updated, err := svc.Update(context.Background(), plan.ID.String(), domain.UpdatePlanRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), updated.Price)
}

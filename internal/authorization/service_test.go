package authorization

import (
	"context"
	"testing"

	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	require.NoError(t, db.Exec(`CREATE TABLE location_staff (location_id INTEGER, user_id INTEGER, role TEXT)`).Error)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{DB: db, Log: zaptest.NewLogger(t), Enforcer: enforcer}), db
}

func TestAuthorizeByLocationRole(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Exec(`INSERT INTO location_staff VALUES (10, 1, 'owner'), (10, 2, 'staff'), (20, 2, 'admin')`).Error)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "user:1", "10", ObjectInvoice, ActionInvoiceVoid))
	assert.NoError(t, svc.Authorize(ctx, "user:2", "10", ObjectClass, ActionClassCheckIn))
	assert.ErrorIs(t, svc.Authorize(ctx, "user:2", "10", ObjectInvoice, ActionInvoiceVoid), ErrForbidden)

	// same user, different location, different role
	assert.NoError(t, svc.Authorize(ctx, "user:2", "20", ObjectInvoice, ActionInvoiceVoid))
	assert.ErrorIs(t, svc.Authorize(ctx, "user:2", "20", ObjectLocation, ActionDelete), ErrForbidden)

	// no membership
	assert.ErrorIs(t, svc.Authorize(ctx, "user:3", "10", ObjectPlan, ActionView), ErrForbidden)
}

func TestAuthorizeServiceActor(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.Authorize(context.Background(), ActorService, "10", ObjectJob, ActionJobEnqueue))

	role, err := svc.Role(context.Background(), ActorService, "10")
	require.NoError(t, err)
	assert.Equal(t, RoleSystem, role)
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Exec(`INSERT INTO location_staff VALUES (10, 5, 'admin')`).Error)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "user:5", "10", ObjectAuditLog, ActionView))

	require.NoError(t, db.Exec(`UPDATE location_staff SET role = 'staff' WHERE user_id = 5`).Error)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:5", "10", ObjectAuditLog, ActionView), ErrForbidden)
}

func TestAuthorizeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.Authorize(ctx, "", "10", ObjectPlan, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "api_key:1", "10", ObjectPlan, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:1", "", ObjectPlan, ActionView), ErrInvalidLocation)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:1", "abc", ObjectPlan, ActionView), ErrInvalidLocation)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:1", "10", "", ActionView), ErrInvalidObject)
}

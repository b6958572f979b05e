package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/audit/auditcontext"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/audit/repository"
	"github.com/monstrox/monstro/internal/clock"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    dbtest.New(t, &auditdomain.AuditLog{}),
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestRecordResolvesContextAndMasksSecrets(t *testing.T) {
	svc, _ := newTestService(t)
	locationID := snowflake.ID(77)

	ctx := obscontext.WithActor(context.Background(), "user", "9001")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = auditcontext.WithClient(ctx, "10.0.0.1", "monstro-app/1.0")

	err := svc.Record(ctx, auditdomain.Entry{
		LocationID: locationID,
		Action:     "invoice.void",
		TargetType: "invoice",
		TargetID:   "inv_1",
		Metadata: map[string]any{
			"reason":         "duplicate",
			"webhook_secret": "whsec_abcdef123456",
		},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), locationID, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "9001", *entry.ActorID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "whsec_****3456", entry.Metadata["webhook_secret"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	locationID := snowflake.ID(5)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{
			LocationID: locationID,
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     "plan.archive",
			TargetType: "plan",
		}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(context.Background(), locationID, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(context.Background(), locationID, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
}

func TestRecordValidation(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Record(context.Background(), auditdomain.Entry{Action: " "}), auditdomain.ErrInvalidAction)

	_, err := svc.List(context.Background(), 0, auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidLocation)
}

func TestRecordFallsBackToSystemActorAndContextLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithLocationID(context.Background(), "88")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: "class.session_canceled"}))

	resp, err := svc.List(context.Background(), snowflake.ID(88), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
	assert.Nil(t, resp.AuditLogs[0].IPAddress)
}

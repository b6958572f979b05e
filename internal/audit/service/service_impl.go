package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/audit/auditcontext"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"github.com/monstrox/monstro/internal/audit/masking"
	"github.com/monstrox/monstro/internal/clock"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record stores one audit event. Secrets, emails and phone numbers in the
// metadata are masked before they reach the table.
func (s *Service) Record(ctx context.Context, e auditdomain.Entry) error {
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return auditdomain.ErrInvalidAction
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		LocationID: s.locationFor(ctx, e.LocationID),
		Action:     e.Action,
		TargetType: firstNonEmpty(e.TargetType, "unknown"),
		TargetID:   optional(e.TargetID),
		Metadata:   datatypes.JSONMap(masking.Metadata(e.Metadata)),
		IPAddress:  optional(auditcontext.IPAddressFromContext(ctx)),
		UserAgent:  optional(auditcontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.clock.Now().UTC(),
	}
	row.ActorType, row.ActorID = actorFor(ctx, e)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		row.Metadata["request_id"] = requestID
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", e.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, locationID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if locationID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidLocation
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		LocationID: locationID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
	}, req.Pagination)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, req.Limit(), func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: int64(item.ID), CreatedAt: item.CreatedAt}
	})

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func (s *Service) locationFor(ctx context.Context, id snowflake.ID) *snowflake.ID {
	if id == 0 {
		id, _ = snowflake.ParseString(obscontext.LocationIDFromContext(ctx))
	}
	if id == 0 {
		return nil
	}
	return &id
}

// actorFor prefers the explicit actor, then the one the request context
// carries, then system.
func actorFor(ctx context.Context, e auditdomain.Entry) (string, *string) {
	actorType := strings.TrimSpace(string(e.ActorType))
	actorID := strings.TrimSpace(e.ActorID)
	if actorType == "" {
		ctxType, ctxID := obscontext.ActorFromContext(ctx)
		actorType = ctxType
		if actorID == "" {
			actorID = ctxID
		}
	}
	return firstNonEmpty(actorType, string(auditdomain.ActorTypeSystem)), optional(actorID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleOwner  = "role:owner"
	RoleAdmin  = "role:admin"
	RoleStaff  = "role:staff"
	RoleSystem = "role:system"
)

// ActorService is the subject used by service-role tokens.
const ActorService = "service"

const (
	ObjectLocation            = "location"
	ObjectPlan                = "plan"
	ObjectMember              = "member"
	ObjectSubscription        = "subscription"
	ObjectInvoice             = "invoice"
	ObjectClass               = "class"
	ObjectAchievement         = "achievement"
	ObjectSupportAssistant    = "support_assistant"
	ObjectSupportConversation = "support_conversation"
	ObjectEmailTemplate       = "email_template"
	ObjectJob                 = "job"
	ObjectAuditLog            = "audit_log"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionLocationManageStaff = "location.manage_staff"
	ActionSubscriptionRenew   = "subscription.renew"
	ActionInvoiceVoid         = "invoice.void"
	ActionInvoiceMarkPaid     = "invoice.mark_paid"
	ActionInvoiceSend         = "invoice.send"
	ActionClassCheckIn        = "class.check_in"
	ActionConversationReply   = "support_conversation.reply"
	ActionConversationClose   = "support_conversation.close"
	ActionEmailTemplateTest   = "email_template.test"
	ActionJobEnqueue          = "job.enqueue"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, locationID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return ErrInvalidLocation
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, actorType, actorID, err := s.resolveActor(ctx, actor, locationID)
	if err != nil {
		s.audit(ctx, "authorization.denied", actorType, actorID, locationID, object, action)
		return err
	}

	domain := fmt.Sprintf("location:%s", locationID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.audit(ctx, "authorization.denied", actorType, actorID, locationID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, "authorization.granted", actorType, actorID, locationID, object, action)
	}
	return nil
}

func (s *ServiceImpl) Role(ctx context.Context, actor string, locationID string) (string, error) {
	roleName, _, _, err := s.resolveActor(ctx, strings.TrimSpace(actor), strings.TrimSpace(locationID))
	return roleName, err
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, locationID string) (string, string, *string, error) {
	if actor == ActorService {
		return RoleSystem, string(auditdomain.ActorTypeService), nil, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", "", nil, ErrInvalidActor
	}

	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return "", "", nil, ErrInvalidActor
	}
	userIDStr := userID.String()
	parsedLocationID, err := snowflake.ParseString(locationID)
	if err != nil || parsedLocationID == 0 {
		return "", string(auditdomain.ActorTypeUser), &userIDStr, ErrInvalidLocation
	}

	role, err := s.roleForUser(ctx, parsedLocationID, userID)
	if err != nil {
		return "", string(auditdomain.ActorTypeUser), &userIDStr, err
	}
	return "role:" + strings.ToLower(role), string(auditdomain.ActorTypeUser), &userIDStr, nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, locationID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM location_staff
		 WHERE location_id = ? AND user_id = ?
		 LIMIT 1`,
		locationID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject and domain so a
// demoted staff member loses the old role on the next check.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, event string, actorType string, actorID *string, locationID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsed, err := snowflake.ParseString(locationID)
	if err != nil || parsed == 0 {
		return
	}
	entry := auditdomain.Entry{
		LocationID: parsed,
		ActorType:  auditdomain.ActorType(actorType),
		Action:     event,
		TargetType: "authorization",
		TargetID:   object + ":" + action,
		Metadata:   map[string]any{"object": object, "action": action},
	}
	if actorID != nil {
		entry.ActorID = *actorID
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("authorization audit failed", zap.Error(err))
	}
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoiceVoid, ActionInvoiceMarkPaid, ActionJobEnqueue, ActionLocationManageStaff:
		return true
	default:
		return false
	}
}

var crud = []string{ActionView, ActionCreate, ActionUpdate, ActionDelete}

var allObjects = map[string][]string{
	ObjectLocation:            {ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionLocationManageStaff},
	ObjectPlan:                crud,
	ObjectMember:              crud,
	ObjectSubscription:        append(append([]string{}, crud...), ActionSubscriptionRenew),
	ObjectInvoice:             {ActionView, ActionCreate, ActionInvoiceVoid, ActionInvoiceMarkPaid, ActionInvoiceSend},
	ObjectClass:               append(append([]string{}, crud...), ActionClassCheckIn),
	ObjectAchievement:         crud,
	ObjectSupportAssistant:    {ActionView, ActionUpdate},
	ObjectSupportConversation: {ActionView, ActionConversationReply, ActionConversationClose},
	ObjectEmailTemplate:       {ActionView, ActionEmailTemplateTest},
	ObjectJob:                 {ActionJobEnqueue},
	ObjectAuditLog:            {ActionView},
}

func rolePolicies() [][]string {
	var policies [][]string
	grant := func(role, object string, actions ...string) {
		for _, action := range actions {
			policies = append(policies, []string{role, object, action})
		}
	}

	for object, actions := range allObjects {
		grant(RoleOwner, object, actions...)
		grant(RoleSystem, object, actions...)
		for _, action := range actions {
			// admins run the gym but cannot delete it
			if object == ObjectLocation && action == ActionDelete {
				continue
			}
			grant(RoleAdmin, object, action)
		}
	}

	for _, object := range []string{ObjectLocation, ObjectPlan, ObjectMember, ObjectSubscription, ObjectInvoice, ObjectClass, ObjectAchievement, ObjectSupportAssistant, ObjectSupportConversation} {
		grant(RoleStaff, object, ActionView)
	}
	grant(RoleStaff, ObjectMember, ActionCreate, ActionUpdate)
	grant(RoleStaff, ObjectClass, ActionCreate, ActionUpdate, ActionClassCheckIn)
	grant(RoleStaff, ObjectSupportConversation, ActionConversationReply, ActionConversationClose)
	grant(RoleStaff, ObjectInvoice, ActionInvoiceSend)
	return policies
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, policy := range rolePolicies() {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

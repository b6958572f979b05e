package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/notification"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/providers/openai"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/support/domain"
	"github.com/monstrox/monstro/internal/support/session"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxContentLength  = 4000
	maxTriggerPhrases = 50
	defaultTemp       = 0.3
	defaultMaxTokens  = 512
	maxMaxTokens      = 4096
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Repo          domain.Repository
	Locations     locationdomain.Service
	Members       memberdomain.Service
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Invoices      invoicedomain.Service
	Classes       classdomain.Service
	LLM           openai.Client

	Achievements achievementdomain.Service `optional:"true"`
	Sessions     *session.Store            `optional:"true"`
	Limiter      *ratelimit.Limiter        `optional:"true"`
	Notifier     notification.Notifier     `optional:"true"`
	Realtime     realtime.Publisher        `optional:"true"`
	Metrics      *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	cfg           config.Config
	repo          domain.Repository
	locations     locationdomain.Service
	members       memberdomain.Service
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
	invoices      invoicedomain.Service
	classes       classdomain.Service
	achievements  achievementdomain.Service
	llm           openai.Client
	sessions      *session.Store
	limiter       *ratelimit.Limiter
	notifier      notification.Notifier
	realtime      realtime.Publisher
	metrics       *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("support.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		cfg:           p.Config,
		repo:          p.Repo,
		locations:     p.Locations,
		members:       p.Members,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
		invoices:      p.Invoices,
		classes:       p.Classes,
		achievements:  p.Achievements,
		llm:           p.LLM,
		sessions:      p.Sessions,
		limiter:       p.Limiter,
		notifier:      p.Notifier,
		realtime:      p.Realtime,
		metrics:       p.Metrics,
	}
}

func (s *Service) UpsertAssistant(ctx context.Context, locationID string, req domain.UpsertAssistantRequest) (*domain.Assistant, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.locations.Get(ctx, lid.String()); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidAssistant
	}
	temperature := defaultTemp
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < 0 || temperature > 2 {
		return nil, domain.ErrInvalidAssistant
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens < 0 || maxTokens > maxMaxTokens {
		return nil, domain.ErrInvalidAssistant
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "":
		status = domain.AssistantActive
	case domain.AssistantActive, domain.AssistantDisabled:
	default:
		return nil, domain.ErrInvalidStatus
	}
	tools, err := normalizeTools(req.EnabledTools)
	if err != nil {
		return nil, err
	}
	phrases := normalizePhrases(req.TriggerPhrases)
	if len(phrases) > maxTriggerPhrases {
		return nil, domain.ErrInvalidAssistant
	}

	now := s.clock.Now().UTC()
	assistant := domain.Assistant{
		ID:             s.genID.Generate(),
		LocationID:     lid,
		Name:           name,
		Instructions:   strings.TrimSpace(req.Instructions),
		Model:          strings.TrimSpace(req.Model),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		TriggerPhrases: phrases,
		EnabledTools:   tools,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	existing, err := s.repo.FindAssistant(ctx, s.db, lid)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		assistant.ID = existing.ID
		assistant.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.UpsertAssistant(ctx, s.db, &assistant); err != nil {
		return nil, err
	}
	s.log.Info("support assistant saved",
		zap.String("location_id", lid.String()),
		zap.String("status", status),
		zap.Strings("tools", tools),
	)
	return s.repo.FindAssistant(ctx, s.db, lid)
}

// normalizeTools keeps the known tools in palette order. A nil list enables
// every tool; an empty one disables them all.
func normalizeTools(requested []string) ([]string, error) {
	if requested == nil {
		return append([]string{}, domain.AllTools...), nil
	}
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		known := false
		for _, t := range domain.AllTools {
			if t == name {
				known = true
				break
			}
		}
		if !known {
			return nil, domain.ErrInvalidAssistant
		}
		want[name] = true
	}
	out := []string{}
	for _, t := range domain.AllTools {
		if want[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) GetAssistant(ctx context.Context, locationID string) (*domain.Assistant, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	assistant, err := s.repo.FindAssistant(ctx, s.db, lid)
	if err != nil {
		return nil, err
	}
	if assistant == nil {
		return nil, domain.ErrAssistantNotFound
	}
	return assistant, nil
}

// StartConversation returns the member's live conversation at the location,
// opening one when there is none.
func (s *Service) StartConversation(ctx context.Context, userID, locationID string) (*domain.Conversation, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	member, err := s.memberForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	membership, err := s.members.GetMembership(ctx, lid, member.ID)
	if err != nil {
		if errors.Is(err, memberdomain.ErrNotMember) {
			return nil, domain.ErrNotLocationMember
		}
		return nil, err
	}
	if membership.Status == memberdomain.MembershipArchived {
		return nil, domain.ErrNotLocationMember
	}

	existing, err := s.repo.FindActiveConversation(ctx, s.db, lid, member.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now().UTC()
	conv := domain.Conversation{
		ID:         s.genID.Generate(),
		LocationID: lid,
		MemberID:   member.ID,
		Status:     domain.ConversationOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	assistant, err := s.repo.FindAssistant(ctx, s.db, lid)
	if err != nil {
		return nil, err
	}
	if assistant != nil {
		conv.AssistantID = &assistant.ID
	}
	if err := s.repo.InsertConversation(ctx, s.db, &conv); err != nil {
		return nil, err
	}
	s.log.Info("support conversation opened",
		zap.String("location_id", lid.String()),
		zap.String("conversation_id", conv.ID.String()),
		zap.String("member_id", member.ID.String()),
	)
	return &conv, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	_, conv, err := s.memberConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, s.db, conv.ID)
	if err != nil {
		return nil, err
	}
	// tool output stays internal
	visible := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleTool || m.Role == domain.RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	return visible, nil
}

func (s *Service) ListConversations(ctx context.Context, locationID string, req domain.ListConversationsRequest) (domain.ListConversationsResponse, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return domain.ListConversationsResponse{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "", domain.ConversationOpen, domain.ConversationEscalated, domain.ConversationClosed:
	default:
		return domain.ListConversationsResponse{}, domain.ErrInvalidStatus
	}
	convs, err := s.repo.ListConversations(ctx, s.db, lid, status, req.Pagination)
	if err != nil {
		return domain.ListConversationsResponse{}, err
	}
	convs, info := pagination.BuildCursorPageInfo(convs, req.Limit(), func(c domain.Conversation) pagination.Cursor {
		return pagination.Cursor{ID: int64(c.ID), CreatedAt: c.CreatedAt}
	})
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return domain.ListConversationsResponse{PageInfo: info, Conversations: convs}, nil
}

func (s *Service) ConversationMessages(ctx context.Context, locationID, conversationID string) ([]domain.Message, error) {
	conv, err := s.staffConversation(ctx, locationID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, s.db, conv.ID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (s *Service) Reply(ctx context.Context, locationID, conversationID, staffUserID string, req domain.ReplyRequest) (*domain.Message, error) {
	conv, err := s.staffConversation(ctx, locationID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationClosed {
		return nil, domain.ErrConversationClosed
	}
	content, err := cleanContent(req.Content)
	if err != nil {
		return nil, err
	}
	msg := s.newMessage(conv.ID, domain.RoleStaff, content)
	if staffUserID != "" {
		msg.Metadata = map[string]any{"staff_user_id": staffUserID}
	}
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	if s.sessions != nil {
		err := s.sessions.Extend(ctx, conv.ID.String(), openai.Message{Role: openai.RoleAssistant, Content: content})
		if err != nil {
			s.log.Warn("support session append failed", zap.String("conversation_id", conv.ID.String()), zap.Error(err))
		}
	}
	return &msg, nil
}

// Close is idempotent; closing drops the cached session.
func (s *Service) Close(ctx context.Context, locationID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.staffConversation(ctx, locationID, conversationID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	changed, err := s.repo.TransitionConversation(ctx, s.db, conv.ID,
		[]string{domain.ConversationOpen, domain.ConversationEscalated}, domain.ConversationClosed, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if s.sessions != nil {
			if err := s.sessions.Reset(ctx, conv.ID.String()); err != nil {
				s.log.Warn("support session reset failed", zap.String("conversation_id", conv.ID.String()), zap.Error(err))
			}
		}
		conv, err = s.repo.FindConversation(ctx, s.db, conv.ID)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, conv.ID, domain.EventConversationUpdated, conv)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.repo.FindConversation(ctx, s.db, cid)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (s *Service) memberForUser(ctx context.Context, userID string) (*memberdomain.Member, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	member, err := s.members.GetByUserID(ctx, uid.String())
	if err != nil {
		if errors.Is(err, memberdomain.ErrNotFound) {
			return nil, domain.ErrNotLocationMember
		}
		return nil, err
	}
	return member, nil
}

// memberConversation loads a conversation owned by the calling user. Someone
// else's conversation reads as not found.
func (s *Service) memberConversation(ctx context.Context, userID, conversationID string) (*memberdomain.Member, *domain.Conversation, error) {
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, nil, err
	}
	member, err := s.memberForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.repo.FindConversation(ctx, s.db, cid)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil || conv.MemberID != member.ID {
		return nil, nil, domain.ErrConversationNotFound
	}
	return member, conv, nil
}

func (s *Service) staffConversation(ctx context.Context, locationID, conversationID string) (*domain.Conversation, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	cid, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.repo.FindConversation(ctx, s.db, cid)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.LocationID != lid {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (s *Service) newMessage(conversationID snowflake.ID, role, content string) domain.Message {
	return domain.Message{
		ID:             s.genID.Generate(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.clock.Now().UTC(),
	}
}

// saveMessage stores the message, bumps the conversation and broadcasts
// anything a participant should see.
func (s *Service) saveMessage(ctx context.Context, msg *domain.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMessage(ctx, tx, msg); err != nil {
			return err
		}
		return s.repo.TouchConversation(ctx, tx, msg.ConversationID, msg.CreatedAt)
	})
	if err != nil {
		return err
	}
	if msg.Role != domain.RoleTool && msg.Role != domain.RoleSystem {
		s.publish(ctx, msg.ConversationID, domain.EventMessageCreated, msg)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, conversationID snowflake.ID, eventType string, payload any) {
	if s.realtime == nil {
		return
	}
	channel := realtime.SupportChannel(conversationID.String())
	if err := s.realtime.Publish(ctx, channel, eventType, payload); err != nil {
		s.log.Warn("realtime publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func cleanContent(value string) (string, error) {
	content := strings.TrimSpace(value)
	if content == "" || len(content) > maxContentLength {
		return "", domain.ErrInvalidContent
	}
	return content, nil
}

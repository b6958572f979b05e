package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/providers/openai"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/support/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/zap"
)

var noParams = map[string]any{"type": "object", "properties": map[string]any{}}

var toolDefs = map[string]openai.FunctionDef{
	domain.ToolMemberSubscriptions: {
		Name:        domain.ToolMemberSubscriptions,
		Description: "List the member's subscriptions at this gym with plan, status and current period end.",
		Parameters:  noParams,
	},
	domain.ToolMemberInvoices: {
		Name:        domain.ToolMemberInvoices,
		Description: "List the member's invoices at this gym that are still open, with amount and due date.",
		Parameters:  noParams,
	},
	domain.ToolUpcomingClasses: {
		Name:        domain.ToolUpcomingClasses,
		Description: "List upcoming classes at this gym with start time, instructor and free spots.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "How many classes, at most 20."},
			},
		},
	},
	domain.ToolMemberPoints: {
		Name:        domain.ToolMemberPoints,
		Description: "Get the member's reward points and completed achievements at this gym.",
		Parameters:  noParams,
	},
	domain.ToolEscalate: {
		Name:        domain.ToolEscalate,
		Description: "Hand the conversation to gym staff when you cannot help or the member asks for a person.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{"type": "string", "description": "Short reason for the handoff."},
			},
			"required": []string{"reason"},
		},
	},
}

// toolsFor returns the tool palette the assistant is allowed to use.
func toolsFor(assistant *domain.Assistant) []openai.Tool {
	tools := make([]openai.Tool, 0, len(assistant.EnabledTools))
	for _, name := range domain.AllTools {
		if !assistant.ToolEnabled(name) {
			continue
		}
		tools = append(tools, openai.Tool{Type: "function", Function: toolDefs[name]})
	}
	return tools
}

type subscriptionView struct {
	ID                string    `json:"id"`
	Plan              string    `json:"plan"`
	Status            string    `json:"status"`
	CurrentPeriodEnd  time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

type invoiceView struct {
	ID       string    `json:"id"`
	Number   string    `json:"number"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	DueAt    time.Time `json:"due_at"`
	Overdue  bool      `json:"overdue"`
}

type classView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Instructor string    `json:"instructor,omitempty"`
	StartsAt   time.Time `json:"starts_at"`
	SpotsLeft  int       `json:"spots_left"`
}

type pointsView struct {
	Points                int64    `json:"points"`
	CompletedAchievements []string `json:"completed_achievements"`
}

func (s *Service) memberSubscriptions(ctx context.Context, memberID snowflake.ID, locationID string) ([]subscriptionView, error) {
	resp, err := s.subscriptions.ListByMember(ctx, memberID.String(), subscriptiondomain.ListSubscriptionRequest{
		Pagination: pagination.Pagination{PageSize: 20},
	})
	if err != nil {
		return nil, err
	}
	planNames := map[snowflake.ID]string{}
	out := []subscriptionView{}
	for _, sub := range resp.Subscriptions {
		if sub.LocationID.String() != locationID || sub.Status == subscriptiondomain.StatusCanceled {
			continue
		}
		name, ok := planNames[sub.PlanID]
		if !ok {
			if plan, err := s.plans.Get(ctx, sub.PlanID.String()); err == nil {
				name = plan.Name
			}
			planNames[sub.PlanID] = name
		}
		out = append(out, subscriptionView{
			ID:                sub.ID.String(),
			Plan:              name,
			Status:            sub.Status,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		})
	}
	return out, nil
}

func (s *Service) openInvoices(ctx context.Context, memberID snowflake.ID, locationID string) ([]invoiceView, error) {
	resp, err := s.invoices.ListByMember(ctx, memberID.String(), invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 20},
		Status:     invoicedomain.StatusOpen,
	})
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := []invoiceView{}
	for _, inv := range resp.Invoices {
		if inv.LocationID.String() != locationID {
			continue
		}
		out = append(out, invoiceView{
			ID:       inv.ID.String(),
			Number:   inv.Number,
			Amount:   formatAmount(inv.Total),
			Currency: strings.ToUpper(inv.Currency),
			DueAt:    inv.DueAt,
			Overdue:  now.After(inv.DueAt),
		})
	}
	return out, nil
}

func (s *Service) upcomingClasses(ctx context.Context, locationID string, limit int) ([]classView, error) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	sessions, err := s.classes.ListUpcoming(ctx, locationID, classdomain.ListUpcomingRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]classView, 0, len(sessions))
	for _, cs := range sessions {
		spots := cs.Capacity - cs.Reserved
		if spots < 0 {
			spots = 0
		}
		out = append(out, classView{
			ID:         cs.ID.String(),
			Name:       cs.Name,
			Instructor: cs.Instructor,
			StartsAt:   cs.StartsAt,
			SpotsLeft:  spots,
		})
	}
	return out, nil
}

func (s *Service) memberPoints(ctx context.Context, memberID snowflake.ID, locationID string) (pointsView, error) {
	lid, err := parseID(locationID)
	if err != nil {
		return pointsView{}, err
	}
	membership, err := s.members.GetMembership(ctx, lid, memberID)
	if err != nil {
		return pointsView{}, err
	}
	view := pointsView{Points: membership.Points, CompletedAchievements: []string{}}
	if s.achievements != nil {
		progress, err := s.achievements.ListForMember(ctx, locationID, memberID.String())
		if err != nil {
			return pointsView{}, err
		}
		for _, p := range progress {
			if p.CompletedAt != nil {
				view.CompletedAchievements = append(view.CompletedAchievements, p.Name)
			}
		}
	}
	return view, nil
}

// runTool executes one tool call and returns its JSON result. Failures are
// reported to the model as an error object rather than aborting the turn.
func (s *Service) runTool(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member, assistant *domain.Assistant, call openai.ToolCall) (string, bool) {
	name := call.Function.Name
	s.metrics.RecordChatbotTool(ctx, name)
	if !assistant.ToolEnabled(name) {
		return toolError("tool not available"), false
	}

	locationID := conv.LocationID.String()
	var (
		result    any
		err       error
		escalated bool
	)
	switch name {
	case domain.ToolMemberSubscriptions:
		result, err = s.memberSubscriptions(ctx, member.ID, locationID)
	case domain.ToolMemberInvoices:
		result, err = s.openInvoices(ctx, member.ID, locationID)
	case domain.ToolUpcomingClasses:
		var args struct {
			Limit int `json:"limit"`
		}
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		result, err = s.upcomingClasses(ctx, locationID, args.Limit)
	case domain.ToolMemberPoints:
		result, err = s.memberPoints(ctx, member.ID, locationID)
	case domain.ToolEscalate:
		var args struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		reason := strings.TrimSpace(args.Reason)
		if reason == "" {
			reason = "assistant"
		}
		err = s.escalate(ctx, conv, member, "tool:"+reason)
		escalated = err == nil
		result = map[string]bool{"escalated": escalated}
	default:
		return toolError("unknown tool"), false
	}
	if err != nil {
		s.log.Warn("support tool failed",
			zap.String("conversation_id", conv.ID.String()),
			zap.String("tool", name),
			zap.Error(err),
		)
		return toolError("lookup failed"), escalated
	}
	b, err := json.Marshal(result)
	if err != nil {
		return toolError("encode failed"), escalated
	}
	return string(b), escalated
}

func toolError(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

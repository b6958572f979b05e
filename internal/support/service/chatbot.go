package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/notification"
	"github.com/monstrox/monstro/internal/providers/openai"
	"github.com/monstrox/monstro/internal/support/domain"
	"go.uber.org/zap"
)

const defaultToolRounds = 3

var errEmptyReply = errors.New("assistant returned an empty reply")

// SendMessage stores the member's message and lets the location's assistant
// answer it. Escalated or closed conversations, and locations without an
// active assistant, are left for staff.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID string, req domain.SendMessageRequest) (*domain.SendMessageResponse, error) {
	member, conv, err := s.memberConversation(ctx, userID, conversationID)
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
	if err := s.allow(ctx, conv, member); err != nil {
		return nil, err
	}

	msg := s.newMessage(conv.ID, domain.RoleUser, content)
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	resp := &domain.SendMessageResponse{Message: msg}
	if conv.Status == domain.ConversationEscalated {
		resp.Escalated = true
		return resp, nil
	}

	assistant, err := s.repo.FindAssistant(ctx, s.db, conv.LocationID)
	if err != nil {
		return nil, err
	}
	if assistant == nil || assistant.Status != domain.AssistantActive {
		return resp, nil
	}

	if phrase, ok := matchTrigger(assistant.TriggerPhrases, content); ok {
		reply, err := s.handOff(ctx, conv, member, "trigger:"+phrase)
		if err != nil {
			return nil, err
		}
		resp.Reply, resp.Escalated = reply, true
		return resp, nil
	}

	reply, escalated, err := s.answer(ctx, conv, member, assistant, msg)
	if err != nil {
		s.log.Warn("assistant failed, handing off",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err),
		)
		reply, err = s.handOff(ctx, conv, member, "assistant_error")
		if err != nil {
			return nil, err
		}
		escalated = true
	}
	resp.Reply, resp.Escalated = reply, escalated
	return resp, nil
}

func (s *Service) allow(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.AllowSupportMessage(ctx, conv.LocationID.String(), member.ID.String())
	if err != nil {
		// a Redis outage should not silence support
		s.log.Warn("support rate limit check failed", zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	s.metrics.RecordRateLimitDenied(ctx, "support.message", "member_bucket")
	return &domain.RateLimitError{RetryAfter: res.RetryAfter}
}

// answer runs the completion loop: the model may call tools for up to the
// configured number of rounds, after which it must reply in text.
func (s *Service) answer(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member, assistant *domain.Assistant, userMsg domain.Message) (*domain.Message, bool, error) {
	if s.llm == nil {
		return nil, false, openai.ErrNotConfigured
	}
	model := assistant.Model
	if model == "" {
		model = s.cfg.OpenAI.Model
	}
	rounds := s.cfg.Support.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultToolRounds
	}
	tools := toolsFor(assistant)

	history := s.history(ctx, conv.ID, userMsg.ID)
	msgs := make([]openai.Message, 0, len(history)+2)
	msgs = append(msgs, openai.Message{Role: openai.RoleSystem, Content: s.systemPrompt(ctx, assistant, member, conv.LocationID.String())})
	msgs = append(msgs, history...)
	msgs = append(msgs, openai.Message{Role: openai.RoleUser, Content: userMsg.Content})

	temperature := assistant.Temperature
	escalated := false
	for round := 0; ; round++ {
		req := openai.ChatRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: &temperature,
			MaxTokens:   assistant.MaxTokens,
		}
		if round < rounds && len(tools) > 0 {
			req.Tools = tools
		}
		resp, err := s.llm.ChatCompletion(ctx, req)
		if err != nil {
			s.metrics.RecordChatbotRequest(ctx, model, "error")
			return nil, escalated, err
		}
		s.metrics.RecordChatbotRequest(ctx, model, "ok")

		if len(resp.Message.ToolCalls) == 0 || req.Tools == nil {
			text := strings.TrimSpace(resp.Message.Content)
			if text == "" {
				return nil, escalated, errEmptyReply
			}
			reply := s.newMessage(conv.ID, domain.RoleAssistant, text)
			reply.Metadata = map[string]any{
				"model":             model,
				"tool_rounds":       round,
				"prompt_tokens":     resp.Usage.PromptTokens,
				"completion_tokens": resp.Usage.CompletionTokens,
			}
			if err := s.saveMessage(ctx, &reply); err != nil {
				return nil, escalated, err
			}
			s.remember(ctx, conv.ID,
				openai.Message{Role: openai.RoleUser, Content: userMsg.Content},
				openai.Message{Role: openai.RoleAssistant, Content: text},
			)
			return &reply, escalated, nil
		}

		msgs = append(msgs, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			result, esc := s.runTool(ctx, conv, member, assistant, call)
			escalated = escalated || esc
			msgs = append(msgs, openai.Message{Role: openai.RoleTool, ToolCallID: call.ID, Content: result})

			toolMsg := s.newMessage(conv.ID, domain.RoleTool, result)
			toolMsg.ToolName = call.Function.Name
			toolMsg.Metadata = map[string]any{"call_id": call.ID, "arguments": call.Function.Arguments}
			if err := s.saveMessage(ctx, &toolMsg); err != nil {
				return nil, escalated, err
			}
		}
	}
}

// history returns the cached turns, rebuilding them from the database when
// the session expired. skip is the message being answered.
func (s *Service) history(ctx context.Context, conversationID, skip snowflake.ID) []openai.Message {
	if s.sessions != nil {
		turns, ok, err := s.sessions.Load(ctx, conversationID.String())
		if err == nil && ok {
			return turns
		}
		if err != nil {
			s.log.Warn("support session load failed", zap.String("conversation_id", conversationID.String()), zap.Error(err))
		}
	}

	size := s.cfg.Support.HistorySize
	if s.sessions != nil {
		size = s.sessions.Size()
	}
	if size <= 0 {
		size = 20
	}
	stored, err := s.repo.RecentMessages(ctx, s.db, conversationID,
		[]string{domain.RoleUser, domain.RoleAssistant, domain.RoleStaff}, size+1)
	if err != nil {
		s.log.Warn("support history load failed", zap.String("conversation_id", conversationID.String()), zap.Error(err))
		return nil
	}
	turns := make([]openai.Message, 0, len(stored))
	for _, m := range stored {
		if m.ID == skip {
			continue
		}
		role := openai.RoleAssistant
		if m.Role == domain.RoleUser {
			role = openai.RoleUser
		}
		turns = append(turns, openai.Message{Role: role, Content: m.Content})
	}
	if len(turns) > size {
		turns = turns[len(turns)-size:]
	}
	s.remember(ctx, conversationID, turns...)
	return turns
}

func (s *Service) remember(ctx context.Context, conversationID snowflake.ID, turns ...openai.Message) {
	if s.sessions == nil || len(turns) == 0 {
		return
	}
	if err := s.sessions.Append(ctx, conversationID.String(), turns...); err != nil {
		s.log.Warn("support session append failed", zap.String("conversation_id", conversationID.String()), zap.Error(err))
	}
}

// handOff escalates and posts the canned handoff reply.
func (s *Service) handOff(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member, reason string) (*domain.Message, error) {
	if err := s.escalate(ctx, conv, member, reason); err != nil {
		return nil, err
	}
	reply := s.newMessage(conv.ID, domain.RoleAssistant, handoffReply)
	reply.Metadata = map[string]any{"handoff": reason}
	if err := s.saveMessage(ctx, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// escalate moves an open conversation to staff and notifies the location's
// staff. It is a no-op when the conversation is already escalated.
func (s *Service) escalate(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member, reason string) error {
	changed, err := s.repo.TransitionConversation(ctx, s.db, conv.ID,
		[]string{domain.ConversationOpen}, domain.ConversationEscalated, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	conv.Status = domain.ConversationEscalated
	s.log.Info("support conversation escalated",
		zap.String("location_id", conv.LocationID.String()),
		zap.String("conversation_id", conv.ID.String()),
		zap.String("reason", reason),
	)
	s.publish(ctx, conv.ID, domain.EventConversationUpdated, conv)
	s.notifyStaff(ctx, conv, member, reason)
	return nil
}

func (s *Service) notifyStaff(ctx context.Context, conv *domain.Conversation, member *memberdomain.Member, reason string) {
	if s.notifier == nil {
		return
	}
	staff, err := s.locations.ListStaff(ctx, conv.LocationID.String())
	if err != nil {
		s.log.Warn("support escalation: staff lookup failed", zap.Error(err))
		return
	}
	name := strings.TrimSpace(member.FirstName + " " + member.LastName)
	for _, st := range staff {
		err := s.notifier.Notify(ctx, notification.Notification{
			UserID:   st.UserID.String(),
			Title:    "Support request",
			Body:     name + " needs help from the team.",
			Workflow: s.cfg.Support.EscalationFlow,
			Data: map[string]any{
				"conversation_id": conv.ID.String(),
				"location_id":     conv.LocationID.String(),
				"member_id":       member.ID.String(),
				"reason":          reason,
			},
		})
		if err != nil {
			s.log.Warn("support escalation notify failed", zap.String("user_id", st.UserID.String()), zap.Error(err))
		}
	}
}

package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/social/domain"
)

type reactionTarget struct {
	kind    string
	id      snowflake.ID
	channel string
}

// resolveTarget checks the target exists and the user can see it.
func (s *Service) resolveTarget(ctx context.Context, uid snowflake.ID, targetType, targetID string) (reactionTarget, error) {
	tid, err := parseID(targetID)
	if err != nil {
		return reactionTarget{}, domain.ErrInvalidTarget
	}
	switch strings.ToLower(strings.TrimSpace(targetType)) {
	case domain.TargetMessage:
		msg, err := s.repo.FindMessage(ctx, s.db, tid)
		if err != nil {
			return reactionTarget{}, err
		}
		if msg == nil {
			return reactionTarget{}, domain.ErrMessageNotFound
		}
		member, err := s.repo.FindChatMember(ctx, s.db, msg.ChatID, uid)
		if err != nil {
			return reactionTarget{}, err
		}
		if member == nil {
			return reactionTarget{}, domain.ErrNotChatMember
		}
		return reactionTarget{kind: domain.TargetMessage, id: tid, channel: realtime.ChatChannel(msg.ChatID.String())}, nil
	case domain.TargetMoment:
		moment, err := s.repo.FindMoment(ctx, s.db, tid)
		if err != nil {
			return reactionTarget{}, err
		}
		if moment == nil {
			return reactionTarget{}, domain.ErrMomentNotFound
		}
		if _, err := s.groupMember(ctx, moment.GroupID, uid); err != nil {
			return reactionTarget{}, err
		}
		return reactionTarget{kind: domain.TargetMoment, id: tid, channel: realtime.GroupChannel(moment.GroupID.String())}, nil
	default:
		return reactionTarget{}, domain.ErrInvalidTarget
	}
}

func cleanEmoji(value string) (string, error) {
	emoji := strings.TrimSpace(value)
	if emoji == "" || len(emoji) > maxEmojiLength || !utf8.ValidString(emoji) {
		return "", domain.ErrInvalidEmoji
	}
	return emoji, nil
}

// React adds the reaction once; repeating it returns the existing row.
func (s *Service) React(ctx context.Context, userID string, req domain.ReactRequest) (*domain.Reaction, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	emoji, err := cleanEmoji(req.Emoji)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, uid, req.TargetType, req.TargetID)
	if err != nil {
		return nil, err
	}

	reaction := domain.Reaction{
		ID:         s.genID.Generate(),
		TargetType: target.kind,
		TargetID:   target.id,
		UserID:     uid,
		Emoji:      emoji,
		CreatedAt:  s.clock.Now().UTC(),
	}
	inserted, err := s.repo.InsertReaction(ctx, s.db, &reaction)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return s.repo.FindReaction(ctx, s.db, target.kind, target.id, uid, emoji)
	}
	s.publish(ctx, target.channel, domain.EventReactionAdded, reaction)
	return &reaction, nil
}

func (s *Service) Unreact(ctx context.Context, userID string, req domain.ReactRequest) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	emoji, err := cleanEmoji(req.Emoji)
	if err != nil {
		return err
	}
	target, err := s.resolveTarget(ctx, uid, req.TargetType, req.TargetID)
	if err != nil {
		return err
	}
	return s.repo.DeleteReaction(ctx, s.db, target.kind, target.id, uid, emoji)
}

func (s *Service) ListReactions(ctx context.Context, userID, targetType, targetID string) ([]domain.ReactionCount, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, uid, targetType, targetID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountReactions(ctx, s.db, target.kind, target.id)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []domain.ReactionCount{}
	}
	return counts, nil
}

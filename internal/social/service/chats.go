package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/social/domain"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) CreateChat(ctx context.Context, userID string, req domain.CreateChatRequest) (*domain.Chat, error) {
	creator, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	others, err := otherUsers(creator, req.UserIDs)
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.ChatDirect
		if len(others) > 1 {
			kind = domain.ChatGroup
		}
	}

	switch kind {
	case domain.ChatDirect:
		if len(others) != 1 {
			return nil, domain.ErrInvalidMembers
		}
		return s.directChat(ctx, creator, others[0])
	case domain.ChatGroup:
		return s.groupChat(ctx, creator, others, req)
	default:
		return nil, domain.ErrInvalidKind
	}
}

func otherUsers(creator snowflake.ID, raw []string) ([]snowflake.ID, error) {
	seen := map[snowflake.ID]bool{creator: true}
	var out []snowflake.ID
	for _, value := range raw {
		id, err := parseID(value)
		if err != nil {
			return nil, domain.ErrInvalidMembers
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 || len(out) >= maxChatMembers {
		return nil, domain.ErrInvalidMembers
	}
	return out, nil
}

func directKey(a, b snowflake.ID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// directChat returns the existing chat for the pair or creates it.
func (s *Service) directChat(ctx context.Context, creator, other snowflake.ID) (*domain.Chat, error) {
	key := directKey(creator, other)
	existing, err := s.repo.FindDirectChat(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now().UTC()
	chat := domain.Chat{
		ID:        s.genID.Generate(),
		Kind:      domain.ChatDirect,
		DirectKey: &key,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	members := []domain.ChatMember{
		{ChatID: chat.ID, UserID: creator, JoinedAt: now},
		{ChatID: chat.ID, UserID: other, JoinedAt: now},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertChat(ctx, tx, &chat, members)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// the other user opened the chat at the same moment
			return s.repo.FindDirectChat(ctx, s.db, key)
		}
		return nil, err
	}
	return &chat, nil
}

func (s *Service) groupChat(ctx context.Context, creator snowflake.ID, others []snowflake.ID, req domain.CreateChatRequest) (*domain.Chat, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	var locationID *snowflake.ID
	if strings.TrimSpace(req.LocationID) != "" {
		lid, err := parseID(req.LocationID)
		if err != nil {
			return nil, err
		}
		if err := s.inLocation(ctx, creator, lid); err != nil {
			return nil, err
		}
		locationID = &lid
	}

	now := s.clock.Now().UTC()
	chat := domain.Chat{
		ID:         s.genID.Generate(),
		LocationID: locationID,
		Name:       name,
		Kind:       domain.ChatGroup,
		CreatedBy:  creator,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	members := make([]domain.ChatMember, 0, len(others)+1)
	members = append(members, domain.ChatMember{ChatID: chat.ID, UserID: creator, JoinedAt: now})
	for _, id := range others {
		members = append(members, domain.ChatMember{ChatID: chat.ID, UserID: id, JoinedAt: now})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertChat(ctx, tx, &chat, members)
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *Service) ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListChatsForUser(ctx, s.db, uid)
}

// memberChat loads the chat and checks the user is in it.
func (s *Service) memberChat(ctx context.Context, userID, chatID string) (snowflake.ID, *domain.Chat, error) {
	uid, err := parseID(userID)
	if err != nil {
		return 0, nil, err
	}
	cid, err := parseID(chatID)
	if err != nil {
		return 0, nil, err
	}
	chat, err := s.repo.FindChat(ctx, s.db, cid)
	if err != nil {
		return 0, nil, err
	}
	if chat == nil {
		return 0, nil, domain.ErrChatNotFound
	}
	member, err := s.repo.FindChatMember(ctx, s.db, cid, uid)
	if err != nil {
		return 0, nil, err
	}
	if member == nil {
		return 0, nil, domain.ErrNotChatMember
	}
	return uid, chat, nil
}

func (s *Service) CheckChatAccess(ctx context.Context, userID, chatID string) error {
	_, _, err := s.memberChat(ctx, userID, chatID)
	return err
}

func (s *Service) SendMessage(ctx context.Context, userID, chatID string, req domain.SendMessageRequest) (*domain.Message, error) {
	uid, chat, err := s.memberChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	content, err := cleanContent(req.Content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	msg := domain.Message{
		ID:        s.genID.Generate(),
		ChatID:    chat.ID,
		SenderID:  uid,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMessage(ctx, tx, &msg); err != nil {
			return err
		}
		if err := s.repo.TouchChat(ctx, tx, chat.ID, now); err != nil {
			return err
		}
		// the sender has read their own message
		return s.repo.MarkRead(ctx, tx, chat.ID, uid, now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.ChatChannel(chat.ID.String()), domain.EventMessageCreated, msg)
	s.log.Debug("message sent", zap.String("chat_id", chat.ID.String()), zap.String("message_id", msg.ID.String()))
	return &msg, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, chatID string, page pagination.Pagination) (domain.ListMessagesResponse, error) {
	_, chat, err := s.memberChat(ctx, userID, chatID)
	if err != nil {
		return domain.ListMessagesResponse{}, err
	}
	msgs, err := s.repo.ListMessages(ctx, s.db, chat.ID, page)
	if err != nil {
		return domain.ListMessagesResponse{}, err
	}
	msgs, info := pagination.BuildCursorPageInfo(msgs, page.Limit(), func(m domain.Message) pagination.Cursor {
		return pagination.Cursor{ID: int64(m.ID), CreatedAt: m.CreatedAt}
	})
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return domain.ListMessagesResponse{PageInfo: info, Messages: msgs}, nil
}

func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	mid, err := parseID(messageID)
	if err != nil {
		return err
	}
	msg, err := s.repo.FindMessage(ctx, s.db, mid)
	if err != nil {
		return err
	}
	if msg == nil {
		return domain.ErrMessageNotFound
	}
	if msg.SenderID != uid {
		return domain.ErrNotAuthor
	}
	if err := s.repo.DeleteMessage(ctx, s.db, mid); err != nil {
		return err
	}
	s.publish(ctx, realtime.ChatChannel(msg.ChatID.String()), domain.EventMessageDeleted, map[string]string{
		"id":      msg.ID.String(),
		"chat_id": msg.ChatID.String(),
	})
	return nil
}

func (s *Service) MarkRead(ctx context.Context, userID, chatID string) error {
	uid, chat, err := s.memberChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, s.db, chat.ID, uid, s.clock.Now().UTC())
}

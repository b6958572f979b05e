package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/support/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertAssistant(ctx context.Context, db *gorm.DB, assistant *domain.Assistant) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "location_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "instructions", "model", "temperature", "max_tokens",
				"trigger_phrases", "enabled_tools", "status", "updated_at",
			}),
		}).
		Create(assistant).Error
}

func (r *repo) FindAssistant(ctx context.Context, db *gorm.DB, locationID snowflake.ID) (*domain.Assistant, error) {
	var assistant domain.Assistant
	err := db.WithContext(ctx).Where("location_id = ?", locationID).Limit(1).Find(&assistant).Error
	if err != nil {
		return nil, err
	}
	if assistant.ID == 0 {
		return nil, nil
	}
	return &assistant, nil
}

func (r *repo) InsertConversation(ctx context.Context, db *gorm.DB, conv *domain.Conversation) error {
	return db.WithContext(ctx).Create(conv).Error
}

func (r *repo) FindConversation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&conv).Error; err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		return nil, nil
	}
	return &conv, nil
}

func (r *repo) FindActiveConversation(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := db.WithContext(ctx).
		Where("location_id = ? AND member_id = ? AND status IN ?", locationID, memberID,
			[]string{domain.ConversationOpen, domain.ConversationEscalated}).
		Order("created_at DESC").
		Limit(1).
		Find(&conv).Error
	if err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		return nil, nil
	}
	return &conv, nil
}

func (r *repo) ListConversations(ctx context.Context, db *gorm.DB, locationID snowflake.ID, status string, page pagination.Pagination) ([]domain.Conversation, error) {
	q := db.WithContext(ctx).Where("location_id = ?", locationID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	stmt, err := pagination.Apply(q, page, "")
	if err != nil {
		return nil, err
	}
	var convs []domain.Conversation
	err = stmt.Find(&convs).Error
	return convs, err
}

func (r *repo) TransitionConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, from []string, to string, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	if to == domain.ConversationClosed {
		updates["closed_at"] = at
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at).Error
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, msg *domain.Message) error {
	return db.WithContext(ctx).Create(msg).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) ([]domain.Message, error) {
	var msgs []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *repo) RecentMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, roles []string, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND role IN ?", conversationID, roles).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

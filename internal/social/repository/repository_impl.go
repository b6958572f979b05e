package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/social/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertChat(ctx context.Context, db *gorm.DB, chat *domain.Chat, members []domain.ChatMember) error {
	if err := db.WithContext(ctx).Create(chat).Error; err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&members).Error
}

func (r *repo) FindChat(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Chat, error) {
	var chat domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&chat).Error; err != nil {
		return nil, err
	}
	if chat.ID == 0 {
		return nil, nil
	}
	return &chat, nil
}

func (r *repo) FindDirectChat(ctx context.Context, db *gorm.DB, key string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := db.WithContext(ctx).Where("direct_key = ?", key).Limit(1).Find(&chat).Error; err != nil {
		return nil, err
	}
	if chat.ID == 0 {
		return nil, nil
	}
	return &chat, nil
}

func (r *repo) ListChatsForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.ChatSummary, error) {
	var chats []domain.ChatSummary
	err := db.WithContext(ctx).Raw(`
		SELECT chats.*,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.chat_id = chats.id
			   AND m.deleted_at IS NULL
			   AND m.sender_id <> cm.user_id
			   AND (cm.last_read_at IS NULL OR m.created_at > cm.last_read_at)) AS unread
		FROM chats
		JOIN chat_members cm ON cm.chat_id = chats.id
		WHERE cm.user_id = ?
		ORDER BY COALESCE(chats.last_message_at, chats.created_at) DESC, chats.id DESC`,
		userID,
	).Scan(&chats).Error
	return chats, err
}

func (r *repo) FindChatMember(ctx context.Context, db *gorm.DB, chatID, userID snowflake.ID) (*domain.ChatMember, error) {
	var member domain.ChatMember
	err := db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Limit(1).
		Find(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ChatID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) ListChatMemberIDs(ctx context.Context, db *gorm.DB, chatID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repo) TouchChat(ctx context.Context, db *gorm.DB, chatID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{"last_message_at": at, "updated_at": at}).Error
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, chatID, userID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("last_read_at", at).Error
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, msg *domain.Message) error {
	return db.WithContext(ctx).Create(msg).Error
}

func (r *repo) FindMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Message, error) {
	var msg domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&msg).Error; err != nil {
		return nil, err
	}
	if msg.ID == 0 {
		return nil, nil
	}
	return &msg, nil
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, chatID snowflake.ID, page pagination.Pagination) ([]domain.Message, error) {
	stmt, err := pagination.Apply(db.WithContext(ctx).Where("chat_id = ?", chatID), page, "")
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	err = stmt.Find(&msgs).Error
	return msgs, err
}

func (r *repo) DeleteMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{}).Error
}

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, group *domain.Group, owner domain.GroupMember) error {
	if err := db.WithContext(ctx).Create(group).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&owner).Error
}

func (r *repo) FindGroup(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&group).Error; err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repo) GroupSlugsWithPrefix(ctx context.Context, db *gorm.DB, locationID snowflake.ID, base string) ([]string, error) {
	var slugs []string
	err := db.WithContext(ctx).
		Model(&domain.Group{}).
		Where("location_id = ? AND (slug = ? OR slug LIKE ?)", locationID, base, base+"-%").
		Pluck("slug", &slugs).Error
	return slugs, err
}

func (r *repo) ListGroups(ctx context.Context, db *gorm.DB, locationID snowflake.ID) ([]domain.Group, error) {
	var groups []domain.Group
	err := db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("name ASC").
		Find(&groups).Error
	return groups, err
}

func (r *repo) FindGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) (*domain.GroupMember, error) {
	var member domain.GroupMember
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Limit(1).
		Find(&member).Error
	if err != nil {
		return nil, err
	}
	if member.GroupID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) UpsertGroupMember(ctx context.Context, db *gorm.DB, member *domain.GroupMember) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(member).Error
}

func (r *repo) DeleteGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&domain.GroupMember{}).Error
}

func (r *repo) InsertMoment(ctx context.Context, db *gorm.DB, moment *domain.Moment) error {
	return db.WithContext(ctx).Create(moment).Error
}

func (r *repo) FindMoment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Moment, error) {
	var moment domain.Moment
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&moment).Error; err != nil {
		return nil, err
	}
	if moment.ID == 0 {
		return nil, nil
	}
	return &moment, nil
}

func (r *repo) ListMoments(ctx context.Context, db *gorm.DB, groupID snowflake.ID, page pagination.Pagination) ([]domain.Moment, error) {
	stmt, err := pagination.Apply(db.WithContext(ctx).Where("group_id = ?", groupID), page, "")
	if err != nil {
		return nil, err
	}
	var moments []domain.Moment
	err = stmt.Find(&moments).Error
	return moments, err
}

func (r *repo) DeleteMoment(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Moment{}).Error
}

func (r *repo) InsertReaction(ctx context.Context, db *gorm.DB, reaction *domain.Reaction) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "target_type"}, {Name: "target_id"}, {Name: "user_id"}, {Name: "emoji"},
			},
			DoNothing: true,
		}).
		Create(reaction)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindReaction(ctx context.Context, db *gorm.DB, targetType string, targetID, userID snowflake.ID, emoji string) (*domain.Reaction, error) {
	var reaction domain.Reaction
	err := db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND user_id = ? AND emoji = ?", targetType, targetID, userID, emoji).
		Limit(1).
		Find(&reaction).Error
	if err != nil {
		return nil, err
	}
	if reaction.ID == 0 {
		return nil, nil
	}
	return &reaction, nil
}

func (r *repo) DeleteReaction(ctx context.Context, db *gorm.DB, targetType string, targetID, userID snowflake.ID, emoji string) error {
	return db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND user_id = ? AND emoji = ?", targetType, targetID, userID, emoji).
		Delete(&domain.Reaction{}).Error
}

func (r *repo) CountReactions(ctx context.Context, db *gorm.DB, targetType string, targetID snowflake.ID) ([]domain.ReactionCount, error) {
	var counts []domain.ReactionCount
	err := db.WithContext(ctx).
		Model(&domain.Reaction{}).
		Select("emoji, COUNT(*) AS count").
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Group("emoji").
		Order("count DESC").
		Order("emoji ASC").
		Scan(&counts).Error
	return counts, err
}

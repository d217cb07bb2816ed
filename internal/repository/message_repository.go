package repository

import (
	"context"
	"strings"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return wrap(r.db.WithContext(ctx).Create(message).Error, "create message")
}

func (r *MessageRepository) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, wrap(err, "find message")
	}
	return &message, nil
}

func (r *MessageRepository) FindByClientID(ctx context.Context, senderID uint, clientID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_id = ?", senderID, clientID).
		First(&message).Error
	if err != nil {
		return nil, wrap(err, "find message by client id")
	}
	return &message, nil
}

func (r *MessageRepository) Update(ctx context.Context, message *models.Message) error {
	err := r.db.WithContext(ctx).
		Model(message).
		Select("content", "edited_at", "deleted_at").
		Updates(message).Error
	return wrap(err, "update message")
}

func (r *MessageRepository) ListBefore(ctx context.Context, convID uint, before *models.Cursor, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if before != nil {
		q = q.Where("(created_at, id) < (?, ?)", before.At, before.ID)
	}

	var messages []models.Message
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, wrap(err, "list messages before")
}

func (r *MessageRepository) ListAfter(ctx context.Context, convID uint, after *models.Cursor, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if after != nil {
		q = q.Where("(created_at, id) > (?, ?)", after.At, after.ID)
	}

	var messages []models.Message
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&messages).Error
	return messages, wrap(err, "list messages after")
}

func (r *MessageRepository) Latest(ctx context.Context, convID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		return nil, wrap(err, "latest message")
	}
	return &message, nil
}

func (r *MessageRepository) LatestAmong(ctx context.Context, convID uint, ids []uint) (*models.Message, error) {
	if len(ids) == 0 {
		return nil, ErrRecordNotFound
	}
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND id IN ?", convID, ids).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		return nil, wrap(err, "latest message among ids")
	}
	return &message, nil
}

func (r *MessageRepository) Search(ctx context.Context, convID uint, query string, limit int) ([]models.Message, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL AND kind = ?", convID, models.TextMessage).
		Where("LOWER(content) LIKE ?", pattern).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, wrap(err, "search messages")
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	return wrap(r.db.WithContext(ctx).Omit("Participants").Create(conv).Error, "create conversation")
}

func (r *ConversationRepository) FindByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, wrap(err, "find conversation")
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&conv, id).Error
	if err != nil {
		return nil, wrap(err, "lock conversation")
	}
	return &conv, nil
}

func (r *ConversationRepository) FindDirectByKey(ctx context.Context, key string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("kind = ? AND direct_key = ?", models.KindDirect, key).
		First(&conv).Error
	if err != nil {
		return nil, wrap(err, "find direct conversation")
	}
	return &conv, nil
}

func (r *ConversationRepository) Update(ctx context.Context, conv *models.Conversation) error {
	return wrap(r.db.WithContext(ctx).Omit("Participants").Save(conv).Error, "update conversation")
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, convID, messageID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Exec(`
		UPDATE conversations
		SET last_message_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
		  AND (last_message_at IS NULL OR (last_message_at, last_message_id) < (?, ?))
	`, messageID, at, Now(), convID, at, messageID).Error
	return wrap(err, "touch last message")
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID uint, before *models.Cursor, limit int) ([]models.Conversation, error) {
	q := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID)
	if before != nil {
		q = q.Where("(COALESCE(conversations.last_message_at, conversations.created_at), conversations.id) < (?, ?)", before.At, before.ID)
	}

	var convs []models.Conversation
	err := q.Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Order("conversations.id DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, wrap(err, "list conversations")
}

func (r *ConversationRepository) SearchForUser(ctx context.Context, userID uint, query string, limit int) ([]models.Conversation, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID).
		Where("conversations.kind = ? AND LOWER(conversations.name) LIKE ?", models.KindGroup, pattern).
		Order("conversations.name ASC").
		Order("conversations.id ASC").
		Limit(limit).
		Find(&convs).Error
	return convs, wrap(err, "search conversations")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

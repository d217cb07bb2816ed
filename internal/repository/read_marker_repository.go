package repository

import (
	"context"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"gorm.io/gorm"
)

type ReadMarkerRepository struct {
	db *gorm.DB
}

func NewReadMarkerRepository(db *gorm.DB) *ReadMarkerRepository {
	return &ReadMarkerRepository{db: db}
}

func (r *ReadMarkerRepository) UpsertMonotonic(ctx context.Context, marker *models.ReadMarker) error {
	err := r.db.WithContext(ctx).Exec(`
		INSERT INTO read_markers (conversation_id, user_id, last_read_message_id, last_read_message_at, last_read_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
		SET last_read_message_id = EXCLUDED.last_read_message_id,
			last_read_message_at = EXCLUDED.last_read_message_at,
			last_read_at = EXCLUDED.last_read_at
		WHERE (read_markers.last_read_message_at, read_markers.last_read_message_id)
			< (EXCLUDED.last_read_message_at, EXCLUDED.last_read_message_id)
	`, marker.ConversationID, marker.UserID, marker.LastReadMessageID, marker.LastReadMessageAt, marker.LastReadAt).Error
	return wrap(err, "upsert read marker")
}

func (r *ReadMarkerRepository) Get(ctx context.Context, convID, userID uint) (*models.ReadMarker, error) {
	var marker models.ReadMarker
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&marker).Error
	if err != nil {
		return nil, wrap(err, "get read marker")
	}
	return &marker, nil
}

func (r *ReadMarkerRepository) ListByConversation(ctx context.Context, convID uint) ([]models.ReadMarker, error) {
	var markers []models.ReadMarker
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("user_id ASC").
		Find(&markers).Error
	return markers, wrap(err, "list read markers")
}

type unreadRow struct {
	ConversationID uint  `gorm:"column:conversation_id"`
	Unread         int64 `gorm:"column:unread"`
}

func (r *ReadMarkerRepository) CountUnread(ctx context.Context, userID uint) (map[uint]int64, error) {
	var rows []unreadRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT p.conversation_id, COUNT(m.id) AS unread
		FROM participants p
		LEFT JOIN read_markers rm
			ON rm.conversation_id = p.conversation_id AND rm.user_id = p.user_id
		LEFT JOIN messages m
			ON m.conversation_id = p.conversation_id
			AND m.sender_id <> p.user_id
			AND m.deleted_at IS NULL
			AND (rm.user_id IS NULL
				OR (m.created_at, m.id) > (rm.last_read_message_at, rm.last_read_message_id))
		WHERE p.user_id = ? AND p.left_at IS NULL
		GROUP BY p.conversation_id
	`, userID).Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "count unread")
	}

	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.ConversationID] = row.Unread
	}
	return out, nil
}

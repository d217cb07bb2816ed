package repository

import (
	"context"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
)

// StoreInterface groups the repositories that must commit together.
// Transaction runs fn against a store bound to a single database transaction;
// fn's error rolls everything back.
type StoreInterface interface {
	Conversations() ConversationRepositoryInterface
	Participants() ParticipantRepositoryInterface
	Messages() MessageRepositoryInterface
	ReadMarkers() ReadMarkerRepositoryInterface
	Transaction(ctx context.Context, fn func(tx StoreInterface) error) error
}

// ConversationRepositoryInterface defines the contract for conversation repository operations
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, conv *models.Conversation) error
	FindByID(ctx context.Context, id uint) (*models.Conversation, error)
	// FindByIDForUpdate locks the conversation row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Conversation, error)
	FindDirectByKey(ctx context.Context, key string) (*models.Conversation, error)
	Update(ctx context.Context, conv *models.Conversation) error
	// TouchLastMessage advances the last-message pointer if (at, messageID) is newer.
	TouchLastMessage(ctx context.Context, convID, messageID uint, at time.Time) error
	ListForUser(ctx context.Context, userID uint, before *models.Cursor, limit int) ([]models.Conversation, error)
	SearchForUser(ctx context.Context, userID uint, query string, limit int) ([]models.Conversation, error)
}

// ParticipantRepositoryInterface defines the contract for participant repository operations
type ParticipantRepositoryInterface interface {
	Create(ctx context.Context, p *models.Participant) error
	CreateBatch(ctx context.Context, ps []models.Participant) error
	FindActive(ctx context.Context, convID, userID uint) (*models.Participant, error)
	// ListActive orders by (joined_at, id).
	ListActive(ctx context.Context, convID uint) ([]models.Participant, error)
	ListHistory(ctx context.Context, convID uint) ([]models.Participant, error)
	MarkLeft(ctx context.Context, participantID uint, at time.Time) error
	UpdateRole(ctx context.Context, participantID uint, role models.Role) error
}

// MessageRepositoryInterface defines the contract for message repository operations
type MessageRepositoryInterface interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (*models.Message, error)
	FindByClientID(ctx context.Context, senderID uint, clientID string) (*models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	// ListBefore returns up to limit messages strictly before the cursor, newest first.
	// A nil cursor starts from the newest message.
	ListBefore(ctx context.Context, convID uint, before *models.Cursor, limit int) ([]models.Message, error)
	// ListAfter returns up to limit messages strictly after the cursor, oldest first.
	// A nil cursor starts from the oldest message.
	ListAfter(ctx context.Context, convID uint, after *models.Cursor, limit int) ([]models.Message, error)
	Latest(ctx context.Context, convID uint) (*models.Message, error)
	// LatestAmong returns the newest of ids that belongs to the conversation.
	LatestAmong(ctx context.Context, convID uint, ids []uint) (*models.Message, error)
	Search(ctx context.Context, convID uint, query string, limit int) ([]models.Message, error)
}

// ReadMarkerRepositoryInterface defines the contract for read marker repository operations
type ReadMarkerRepositoryInterface interface {
	// UpsertMonotonic never moves an existing marker backwards.
	UpsertMonotonic(ctx context.Context, marker *models.ReadMarker) error
	Get(ctx context.Context, convID, userID uint) (*models.ReadMarker, error)
	ListByConversation(ctx context.Context, convID uint) ([]models.ReadMarker, error)
	// CountUnread returns unread counts keyed by conversation for every
	// conversation the user is active in.
	CountUnread(ctx context.Context, userID uint) (map[uint]int64, error)
}

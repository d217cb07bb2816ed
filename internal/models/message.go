package models

import (
	"time"
)

type MessageKind string

const (
	TextMessage   MessageKind = "text"
	SystemMessage MessageKind = "system"
)

// Message rows are ordered by (CreatedAt, ID). Neither value changes after insert.
type Message struct {
	ID             uint      `gorm:"primarykey;index:idx_message_order,priority:3" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_message_order,priority:1" json:"conversation_id"`
	CreatedAt      time.Time `gorm:"not null;index:idx_message_order,priority:2" json:"created_at"`

	SenderID  uint        `gorm:"not null;uniqueIndex:idx_client_sender;index" json:"sender_id"`
	Kind      MessageKind `gorm:"type:varchar(10);not null;default:'text'" json:"kind"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	ReplyToID *uint       `gorm:"index" json:"reply_to_id,omitempty"`

	// ClientID is a sender-chosen UUID that makes retried sends idempotent.
	ClientID *string `gorm:"type:varchar(36);uniqueIndex:idx_client_sender" json:"client_id,omitempty"`

	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

func (m *Message) IsDeleted() bool { return m.DeletedAt != nil }

func (m *Message) Cursor() Cursor { return Cursor{At: m.CreatedAt, ID: m.ID} }

// Before reports whether m sorts strictly before other.
func (m *Message) Before(other *Message) bool {
	return m.Cursor().Before(other.Cursor())
}

type MessageResponse struct {
	ID             uint        `json:"id"`
	ConversationID uint        `json:"conversation_id"`
	SenderID       uint        `json:"sender_id"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content,omitempty"`
	ReplyToID      *uint       `json:"reply_to_id,omitempty"`
	ClientID       *string     `json:"client_id,omitempty"`
	Deleted        bool        `json:"deleted"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ToResponse renders a tombstoned message as a stub without content.
func (m *Message) ToResponse() MessageResponse {
	resp := MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Kind,
		CreatedAt:      m.CreatedAt,
	}
	if m.IsDeleted() {
		resp.Deleted = true
		resp.DeletedAt = m.DeletedAt
		return resp
	}
	resp.Content = m.Content
	resp.ReplyToID = m.ReplyToID
	resp.ClientID = m.ClientID
	resp.EditedAt = m.EditedAt
	return resp
}

func ToResponses(messages []Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].ToResponse())
	}
	return out
}

package models

import (
	"time"
)

// ReadMarker tracks per-user read progress in a conversation.
// (LastReadMessageAt, LastReadMessageID) only moves forward.
type ReadMarker struct {
	ConversationID    uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID            uint      `gorm:"primaryKey" json:"user_id"`
	LastReadMessageID uint      `gorm:"not null;default:0" json:"last_read_message_id"`
	LastReadMessageAt time.Time `gorm:"not null" json:"last_read_message_at"`
	LastReadAt        time.Time `gorm:"not null" json:"last_read_at"`
}

func (r *ReadMarker) Cursor() Cursor {
	return Cursor{At: r.LastReadMessageAt, ID: r.LastReadMessageID}
}

// UnreadSummary is the unread count for every active conversation plus the total.
type UnreadSummary struct {
	Conversations map[uint]int64 `json:"conversations" msgpack:"c"`
	Total         int64          `json:"total" msgpack:"t"`
}

func NewUnreadSummary(counts map[uint]int64) UnreadSummary {
	s := UnreadSummary{Conversations: make(map[uint]int64, len(counts))}
	for id, n := range counts {
		if n < 0 {
			n = 0
		}
		s.Conversations[id] = n
		s.Total += n
	}
	return s
}

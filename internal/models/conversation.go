package models

import (
	"fmt"
	"time"
)

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

type Conversation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind               ConversationKind `gorm:"type:varchar(10);not null;index" json:"kind"`
	Name               string           `gorm:"size:100" json:"name,omitempty"`
	Description        string           `gorm:"size:255" json:"description,omitempty"`
	AdminOnlyMessaging bool             `gorm:"not null;default:false" json:"admin_only_messaging"`
	CreatedBy          uint             `gorm:"not null;index" json:"created_by"`

	// DirectKey is "<min>:<max>" of the two user ids; null for groups.
	DirectKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	LastMessageID *uint      `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	// ClosedAt is set once the last participant has left a group.
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func DirectKey(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

func (c *Conversation) IsGroup() bool { return c.Kind == KindGroup }

func (c *Conversation) IsClosed() bool { return c.ClosedAt != nil }

// LastActivity is the sort key for conversation lists.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Participant is one membership stint. Leaving stamps LeftAt; rejoining
// inserts a fresh row so earlier stints remain for audit.
type Participant struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	ConversationID uint       `gorm:"not null;index:idx_participant_conv_user" json:"conversation_id"`
	UserID         uint       `gorm:"not null;index:idx_participant_conv_user;index" json:"user_id"`
	Role           Role       `gorm:"type:varchar(10);not null" json:"role"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `gorm:"index" json:"left_at,omitempty"`
}

func (p *Participant) Active() bool { return p.LeftAt == nil }

func (p *Participant) IsAdmin() bool { return p.Role.AtLeast(RoleAdmin) }

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatSession groups messages for one conversation. Title stays nil until the
// first user message derives one, or the user renames it explicitly.
// LastMessageAt is the ordering key for recent-chat listings and is bumped on
// every message write.
type ChatSession struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string    `gorm:"type:text;not null;index:idx_chat_sessions_user_last,priority:1" json:"userId"`

	Title *string `gorm:"type:text" json:"title"`

	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null" json:"updatedAt"`
	LastMessageAt time.Time `gorm:"not null;index:idx_chat_sessions_user_last,priority:2,sort:desc" json:"lastMessageAt"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage rows are immutable once written. MessageIndex is the
// caller-supplied ordering token, kept distinct from the timestamp.
// UserID is denormalized from the session for query convenience.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"sessionId"`
	UserID    string    `gorm:"type:text;not null;index" json:"userId"`

	Role         string            `gorm:"type:text;not null" json:"role"`
	Content      string            `gorm:"type:text;not null" json:"content"`
	MessageIndex int64             `gorm:"not null;default:0" json:"messageIndex"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"timestamp"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

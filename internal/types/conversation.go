package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConversationDocument is the durable record of a finalized session.
// session_id is unique across the table; (user_id, updated_at desc) backs
// per-user recency listings.
type ConversationDocument struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"column:session_id;uniqueIndex;not null" json:"session_id"`
	UserID    string         `gorm:"column:user_id;not null;index:idx_conversation_user_updated,priority:1" json:"user_id"`
	Messages  datatypes.JSON `gorm:"column:messages;type:jsonb" json:"messages"`
	Summary   string         `gorm:"column:summary" json:"summary"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index:idx_conversation_user_updated,priority:2,sort:desc" json:"updated_at"`
}

func (ConversationDocument) TableName() string {
	return "conversation"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

const (
	FinishCancelled   = "cancelled"
	FinishInterrupted = "interrupted"
)

// MessageMetadata is stored as jsonb next to the message. Partial is set on
// assistant messages persisted from a stream that did not reach [DONE].
type MessageMetadata struct {
	Partial      bool   `json:"partial,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Message struct {
	ID        uuid.UUID       `json:"id"`
	ChatID    uuid.UUID       `json:"chat_id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New Chat"

type Chat struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateChatRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest is the body of POST /v1/chats/{id}/message.
type SendMessageRequest struct {
	Message string   `json:"message"`
	FileIDs []string `json:"file_ids"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

type File struct {
	ID           uuid.UUID  `json:"id"`
	ChatID       *uuid.UUID `json:"chat_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Filename     string     `json:"filename"`
	FilePath     string     `json:"file_path"`
	FileSize     int64      `json:"file_size"`
	MimeType     string     `json:"mime_type"`
	Status       FileStatus `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

type FileChunk struct {
	ID         uuid.UUID       `json:"id"`
	FileID     uuid.UUID       `json:"file_id"`
	ChunkIndex int             `json:"chunk_index"`
	Content    string          `json:"content"`
	PageNumber *int            `json:"page_number"`
	Metadata   json.RawMessage `json:"metadata"`
}

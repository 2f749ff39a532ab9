package models

import (
	"time"

	"github.com/google/uuid"
)

const JobTypeFileIngestion = "file-ingestion"

// Job is the payload pushed onto a Redis queue. The file row carries the
// durable status; the job only lives in Redis.
type Job struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Type       string    `json:"type"`
	FileID     uuid.UUID `json:"file_id"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type FileStatusEvent struct {
	FileID       uuid.UUID  `json:"file_id"`
	Status       FileStatus `json:"status"`
	ChunkCount   int        `json:"chunk_count,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

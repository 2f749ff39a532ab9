package models

import (
	"time"

	"github.com/google/uuid"
)

type AdminOverview struct {
	TotalUsers     int     `json:"total_users"`
	TotalChats     int     `json:"total_chats"`
	TotalMessages  int     `json:"total_messages"`
	TotalFiles     int     `json:"total_files"`
	RecentActivity []*Chat `json:"recent_activity"`
}

// UserSummary is derived from chats and files; user records live with the
// identity provider.
type UserSummary struct {
	ID        uuid.UUID  `json:"id"`
	ChatCount int        `json:"chat_count"`
	FileCount int        `json:"file_count"`
	FirstSeen *time.Time `json:"first_seen_at"`
	LastSeen  *time.Time `json:"last_active_at"`
}

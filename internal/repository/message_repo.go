package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"founder-llm-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Create appends a message and bumps the chat's updated_at in the same
// transaction.
func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("append message: invalid role %q", m.Role)
	}
	m.ID = uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, role, content, metadata) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		m.ID, m.ChatID, string(m.Role), m.Content, m.Metadata,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`, m.CreatedAt, m.ChatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return tx.Commit(ctx)
}

// ListByChat returns the first limit messages, oldest first.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, chat_id, role, content, metadata, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC LIMIT $2`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListRecent returns the latest limit messages, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, chat_id, role, content, metadata, created_at FROM (
			SELECT id, chat_id, role, content, metadata, created_at
			FROM messages WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at ASC, id ASC`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows rowScanner) ([]*models.Message, error) {
	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"founder-llm-backend/internal/models"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

const chatColumns = `id, user_id, title, created_at, updated_at`

func (r *ChatRepo) Create(ctx context.Context, c *models.Chat) error {
	c.ID = uuid.New()
	if c.Title == "" {
		c.Title = models.DefaultChatTitle
	}

	query := `INSERT INTO chats (id, user_id, title) VALUES ($1, $2, $3) RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query, c.ID, c.UserID, c.Title).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	c := &models.Chat{}
	err := r.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id).Scan(
		&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChats(rows)
}

// Touch bumps updated_at so the chat sorts first in ListByUser.
func (r *ChatRepo) Touch(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListAll returns the most recently active chats across all users.
func (r *ChatRepo) ListAll(ctx context.Context, limit int) ([]*models.Chat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChats(rows)
}

// Delete removes the chat. Messages, linked files and their chunks go with it
// through ON DELETE CASCADE; storage objects are the caller's concern.
func (r *ChatRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete chat: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM file_chunks WHERE file_id IN (SELECT id FROM files WHERE chat_id = $1)`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM files WHERE chat_id = $1`, id); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanChats(rows rowScanner) ([]*models.Chat, error) {
	chats := []*models.Chat{}
	for rows.Next() {
		c := &models.Chat{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

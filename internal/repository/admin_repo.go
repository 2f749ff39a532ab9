package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"founder-llm-backend/internal/models"
)

type AdminRepo struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) *AdminRepo {
	return &AdminRepo{pool: pool}
}

func (r *AdminRepo) Overview(ctx context.Context) (*models.AdminOverview, error) {
	o := &models.AdminOverview{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM (SELECT user_id FROM chats UNION SELECT user_id FROM files) u),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM files)
	`).Scan(&o.TotalUsers, &o.TotalChats, &o.TotalMessages, &o.TotalFiles)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats ORDER BY created_at DESC LIMIT 10`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.RecentActivity, err = scanChats(rows)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListUsers derives the user list from chat and file ownership.
func (r *AdminRepo) ListUsers(ctx context.Context) ([]*models.UserSummary, error) {
	rows, err := r.pool.Query(ctx, `
		WITH activity AS (
			SELECT user_id, created_at, updated_at AS active_at, 1 AS is_chat, 0 AS is_file FROM chats
			UNION ALL
			SELECT user_id, created_at, created_at AS active_at, 0, 1 FROM files
		)
		SELECT user_id, SUM(is_chat), SUM(is_file), MIN(created_at), MAX(active_at)
		FROM activity
		GROUP BY user_id
		ORDER BY MAX(active_at) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*models.UserSummary{}
	for rows.Next() {
		u := &models.UserSummary{}
		var id uuid.UUID
		if err := rows.Scan(&id, &u.ChatCount, &u.FileCount, &u.FirstSeen, &u.LastSeen); err != nil {
			return nil, err
		}
		u.ID = id
		users = append(users, u)
	}
	return users, rows.Err()
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"founder-llm-backend/internal/models"
)

type FileRepo struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) *FileRepo {
	return &FileRepo{pool: pool}
}

const fileColumns = `id, chat_id, user_id, filename, file_path, file_size, mime_type, status, error_message, created_at, processed_at`

func (r *FileRepo) Create(ctx context.Context, f *models.File) error {
	f.ID = uuid.New()
	if f.Status == "" {
		f.Status = models.FileStatusPending
	}

	query := `INSERT INTO files (id, chat_id, user_id, filename, file_path, file_size, mime_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		f.ID, f.ChatID, f.UserID, f.Filename, f.FilePath, f.FileSize, f.MimeType, string(f.Status),
	).Scan(&f.CreatedAt)
}

func (r *FileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListByUser returns the user's files, newest first, optionally limited to one chat.
func (r *FileRepo) ListByUser(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, limit int) ([]*models.File, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files
		WHERE user_id = $1 AND ($2::uuid IS NULL OR chat_id = $2)
		ORDER BY created_at DESC LIMIT $3`,
		userID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *FileRepo) ListByChat(ctx context.Context, chatID uuid.UUID) ([]*models.File, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE chat_id = $1 ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *FileRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FileStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE files SET status = $1, error_message = NULL,
		        processed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE processed_at END
		 WHERE id = $2`, string(status), id)
	return err
}

// MarkFailed records a terminal ingestion failure.
func (r *FileRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE files SET status = 'failed', error_message = $1, processed_at = NOW() WHERE id = $2`, reason, id)
	return err
}

type singleRowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row singleRowScanner) (*models.File, error) {
	f := &models.File{}
	var status string
	err := row.Scan(
		&f.ID, &f.ChatID, &f.UserID, &f.Filename, &f.FilePath, &f.FileSize,
		&f.MimeType, &status, &f.ErrorMessage, &f.CreatedAt, &f.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = models.FileStatus(status)
	return f, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"founder-llm-backend/internal/models"
)

type ChunkRepo struct {
	pool *pgxpool.Pool
}

func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

const chunkColumns = `c.id, c.file_id, c.chunk_index, c.content, c.page_number, c.metadata`

// ListByFile returns every chunk of a file regardless of its status.
func (r *ChunkRepo) ListByFile(ctx context.Context, fileID uuid.UUID) ([]*models.FileChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM file_chunks c WHERE c.file_id = $1 ORDER BY c.chunk_index ASC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListCompletedByFile returns the chunks of a file only while the file is
// completed, so readers never observe an ingestion in flight.
func (r *ChunkRepo) ListCompletedByFile(ctx context.Context, fileID uuid.UUID) ([]*models.FileChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+`
		FROM file_chunks c JOIN files f ON f.id = c.file_id
		WHERE c.file_id = $1 AND f.status = 'completed'
		ORDER BY c.chunk_index ASC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ReplaceForFile swaps the file's chunks and marks it completed in one
// transaction.
func (r *ChunkRepo) ReplaceForFile(ctx context.Context, fileID uuid.UUID, chunks []*models.FileChunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM file_chunks WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		c.ID = uuid.New()
		c.FileID = fileID
		meta := c.Metadata
		if len(meta) == 0 {
			meta = json.RawMessage("{}")
		}
		rows = append(rows, []any{c.ID, c.FileID, c.ChunkIndex, c.Content, c.PageNumber, []byte(meta)})
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"file_chunks"},
			[]string{"id", "file_id", "chunk_index", "content", "page_number", "metadata"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE files SET status = 'completed', error_message = NULL, processed_at = NOW() WHERE id = $1`, fileID); err != nil {
		return fmt.Errorf("complete file: %w", err)
	}
	return tx.Commit(ctx)
}

func scanChunks(rows rowScanner) ([]*models.FileChunk, error) {
	chunks := []*models.FileChunk{}
	for rows.Next() {
		c := &models.FileChunk{}
		var meta []byte
		if err := rows.Scan(&c.ID, &c.FileID, &c.ChunkIndex, &c.Content, &c.PageNumber, &meta); err != nil {
			return nil, err
		}
		c.Metadata = meta
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

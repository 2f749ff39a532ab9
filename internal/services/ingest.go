package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/models"
	"founder-llm-backend/internal/storage"
)

type IngestFileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FileStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type ChunkWriter interface {
	ReplaceForFile(ctx context.Context, fileID uuid.UUID, chunks []*models.FileChunk) error
}

// IngestionService turns a stored upload into chunks. The chunk write and the
// switch to completed happen in one transaction.
type IngestionService struct {
	files     IngestFileStore
	chunks    ChunkWriter
	store     storage.ObjectStore
	extractor *FileExtractService
	chunker   *Chunker
	log       *logger.Logger
}

func NewIngestionService(
	files IngestFileStore,
	chunks ChunkWriter,
	store storage.ObjectStore,
	extractor *FileExtractService,
	chunker *Chunker,
	log *logger.Logger,
) *IngestionService {
	return &IngestionService{
		files:     files,
		chunks:    chunks,
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		log:       log.With("service", "IngestionService"),
	}
}

// IsPermanent reports whether retrying ingestion cannot help. A missing file
// row means the file was deleted while its job was queued.
func IsPermanent(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, ErrUnsupportedFileType) ||
		errors.Is(err, ErrNoExtractableText) ||
		errors.Is(err, storage.ErrObjectNotFound)
}

// Ingest processes one file and returns the number of chunks written. On
// error the file is left in processing; the caller decides between retry and
// MarkFailed.
func (s *IngestionService) Ingest(ctx context.Context, fileID uuid.UUID) (int, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("load file: %w", err)
	}

	if err := s.files.UpdateStatus(ctx, fileID, models.FileStatusProcessing); err != nil {
		return 0, fmt.Errorf("mark processing: %w", err)
	}

	rc, err := s.store.Get(ctx, file.FilePath)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", file.FilePath, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", file.FilePath, err)
	}

	doc, err := s.extractor.Extract(file.Filename, data)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", file.Filename, err)
	}

	chunks := s.chunker.Split(doc)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("chunk %s: %w", file.Filename, ErrNoExtractableText)
	}

	if err := s.chunks.ReplaceForFile(ctx, fileID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	s.log.Info("file ingested",
		"file_id", fileID,
		"pages", len(doc.Pages),
		"chars", doc.CharCount(),
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// Fail records a terminal failure on the file.
func (s *IngestionService) Fail(ctx context.Context, fileID uuid.UUID, cause error) error {
	return s.files.MarkFailed(ctx, fileID, cause.Error())
}

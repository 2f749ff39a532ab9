package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/models"
	"founder-llm-backend/internal/storage"
)

type stubIngestFiles struct {
	files    map[uuid.UUID]*models.File
	statuses []models.FileStatus
	failed   string
}

func (s *stubIngestFiles) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	if f, ok := s.files[id]; ok {
		return f, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubIngestFiles) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FileStatus) error {
	s.statuses = append(s.statuses, status)
	s.files[id].Status = status
	return nil
}

func (s *stubIngestFiles) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.failed = reason
	s.files[id].Status = models.FileStatusFailed
	return nil
}

type stubChunkWriter struct {
	files  *stubIngestFiles
	chunks map[uuid.UUID][]*models.FileChunk
	err    error
}

func (s *stubChunkWriter) ReplaceForFile(ctx context.Context, fileID uuid.UUID, chunks []*models.FileChunk) error {
	if s.err != nil {
		return s.err
	}
	s.chunks[fileID] = chunks
	s.files.files[fileID].Status = models.FileStatusCompleted
	return nil
}

func newIngestFixture(t *testing.T) (*IngestionService, *stubIngestFiles, *stubChunkWriter, storage.ObjectStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	files := &stubIngestFiles{files: map[uuid.UUID]*models.File{}}
	chunks := &stubChunkWriter{files: files, chunks: map[uuid.UUID][]*models.FileChunk{}}
	svc := NewIngestionService(files, chunks, store, NewFileExtractService(), NewChunker(100, 10), logger.Nop())
	return svc, files, chunks, store
}

func addStoredFile(t *testing.T, files *stubIngestFiles, store storage.ObjectStore, name, body string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	key := fmt.Sprintf("%s/%s", uuid.NewString(), name)
	if body != "" {
		if err := store.Put(context.Background(), key, strings.NewReader(body), "text/plain"); err != nil {
			t.Fatal(err)
		}
	}
	files.files[id] = &models.File{ID: id, Filename: name, FilePath: key, Status: models.FileStatusPending}
	return id
}

func TestIngest_Success(t *testing.T) {
	svc, files, chunks, store := newIngestFixture(t)
	id := addStoredFile(t, files, store, "notes.txt", strings.Repeat("termination notice period ", 20))

	n, err := svc.Ingest(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n < 2 || len(chunks.chunks[id]) != n {
		t.Errorf("expected %d stored chunks, got %d", n, len(chunks.chunks[id]))
	}
	if len(files.statuses) != 1 || files.statuses[0] != models.FileStatusProcessing {
		t.Errorf("expected processing before completion, got %v", files.statuses)
	}
	if files.files[id].Status != models.FileStatusCompleted {
		t.Errorf("expected completed, got %s", files.files[id].Status)
	}
}

func TestIngest_PermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{"unsupported type", "sheet.xlsx", "cells", ErrUnsupportedFileType},
		{"no text", "blank.txt", "   \n  ", ErrNoExtractableText},
		{"missing object", "gone.txt", "", storage.ErrObjectNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, files, chunks, store := newIngestFixture(t)
			id := addStoredFile(t, files, store, tc.file, tc.body)

			_, err := svc.Ingest(context.Background(), id)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsPermanent(err) {
				t.Error("expected error to be permanent")
			}
			if len(chunks.chunks[id]) != 0 {
				t.Error("no chunks may be stored on failure")
			}

			if err := svc.Fail(context.Background(), id, err); err != nil {
				t.Fatal(err)
			}
			if files.files[id].Status != models.FileStatusFailed || files.failed == "" {
				t.Errorf("expected failed with reason, got %s %q", files.files[id].Status, files.failed)
			}
		})
	}
}

func TestIngest_TransientChunkWriteError(t *testing.T) {
	svc, files, chunks, store := newIngestFixture(t)
	id := addStoredFile(t, files, store, "notes.txt", "some text")
	chunks.err = errors.New("connection reset")

	_, err := svc.Ingest(context.Background(), id)
	if err == nil || IsPermanent(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if files.files[id].Status != models.FileStatusProcessing {
		t.Errorf("file must stay processing for retry, got %s", files.files[id].Status)
	}
}

func TestIngest_UnknownFile(t *testing.T) {
	svc, _, _, _ := newIngestFixture(t)
	_, err := svc.Ingest(context.Background(), uuid.New())
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if !IsPermanent(err) {
		t.Error("a file deleted while queued must not be retried")
	}
}

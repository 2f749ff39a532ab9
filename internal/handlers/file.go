package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/middleware"
	"founder-llm-backend/internal/models"
	"founder-llm-backend/internal/services"
	"founder-llm-backend/internal/storage"
)

type fileRepository interface {
	Create(ctx context.Context, f *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	ListByUser(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, limit int) ([]*models.File, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FileStatus) error
}

type chunkLister interface {
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]*models.FileChunk, error)
}

type chatGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type FileHandler struct {
	fileRepo       fileRepository
	chunkRepo      chunkLister
	chatRepo       chatGetter
	store          storage.ObjectStore
	queue          jobEnqueuer
	maxUploadBytes int64
	log            *logger.Logger
}

func NewFileHandler(
	fileRepo fileRepository,
	chunkRepo chunkLister,
	chatRepo chatGetter,
	store storage.ObjectStore,
	queue jobEnqueuer,
	maxUploadBytes int64,
	log *logger.Logger,
) *FileHandler {
	return &FileHandler{
		fileRepo:       fileRepo,
		chunkRepo:      chunkRepo,
		chatRepo:       chatRepo,
		store:          store,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		log:            log.With("handler", "file"),
	}
}

var mimeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

// Upload stores a multipart "file" and queues it for ingestion. An optional
// chat_id links the file to one of the caller's chats.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 && r.ContentLength > h.maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds the upload limit", r))
		return
	}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds the upload limit", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	filename := storage.SanitizeFilename(header.Filename)
	if !services.SupportedExtension(filename) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Only PDF, DOCX and TXT files are supported", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	var chatID *uuid.UUID
	if raw := strings.TrimSpace(r.FormValue("chat_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
			return
		}
		chat, err := h.chatRepo.GetByID(r.Context(), id)
		if err != nil || chat.UserID != userID {
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				h.log.Error("load chat failed", "chat_id", id, "error", err)
			}
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
			return
		}
		chatID = &id
	}

	mimeType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mimeType); err != nil || mt == "application/octet-stream" {
		mimeType = mimeByExtension[strings.ToLower(filepath.Ext(filename))]
	}

	key := storage.ObjectKey(userID, filename, time.Now())
	if err := h.store.Put(r.Context(), key, file, mimeType); err != nil {
		h.log.Error("store upload failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	record := &models.File{
		ChatID:   chatID,
		UserID:   userID,
		Filename: filename,
		FilePath: key,
		FileSize: header.Size,
		MimeType: mimeType,
		Status:   models.FileStatusPending,
	}
	if err := h.fileRepo.Create(r.Context(), record); err != nil {
		h.log.Error("create file record failed", "key", key, "error", err)
		if derr := h.store.Delete(r.Context(), key); derr != nil {
			h.log.Warn("failed to remove orphaned object", "key", key, "error", derr)
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create file record", r))
		return
	}

	if chatID != nil {
		if err := h.chatRepo.Touch(r.Context(), *chatID); err != nil {
			h.log.Warn("touch chat failed", "chat_id", *chatID, "error", err)
		}
	}

	if !h.enqueue(w, r, record) {
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (h *FileHandler) enqueue(w http.ResponseWriter, r *http.Request, f *models.File) bool {
	job := &models.Job{UserID: f.UserID, Type: models.JobTypeFileIngestion, FileID: f.ID}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.log.Error("enqueue ingestion failed", "file_id", f.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue file for processing", r))
		return false
	}
	h.log.Info("ingestion queued", "file_id", f.ID, "job_id", job.ID)
	return true
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	var chatID *uuid.UUID
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
			return
		}
		chatID = &id
	}

	files, err := h.fileRepo.ListByUser(r.Context(), middleware.GetUserID(r.Context()), chatID, parseLimit(r, 50, 200))
	if err != nil {
		h.log.Error("list files failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list files", r))
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) ownedFile(w http.ResponseWriter, r *http.Request) (*models.File, bool) {
	fileID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid file ID", r))
		return nil, false
	}

	f, err := h.fileRepo.GetByID(r.Context(), fileID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		h.log.Error("load file failed", "file_id", fileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load file", r))
		return nil, false
	}
	if err != nil || f.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "File not found", r))
		return nil, false
	}
	return f, true
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFile(w, r)
	if !ok {
		return
	}

	chunks, err := h.chunkRepo.ListByFile(r.Context(), f.ID)
	if err != nil {
		h.log.Error("list chunks failed", "file_id", f.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list chunks", r))
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// Ingest queues the file again, for example after a failure.
func (h *FileHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	if f.Status == models.FileStatusProcessing {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "File is already being processed", r))
		return
	}

	if err := h.fileRepo.UpdateStatus(r.Context(), f.ID, models.FileStatusPending); err != nil {
		h.log.Error("reset file status failed", "file_id", f.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue file for processing", r))
		return
	}
	f.Status = models.FileStatusPending
	f.ErrorMessage = nil

	if !h.enqueue(w, r, f) {
		return
	}
	writeJSON(w, http.StatusAccepted, f)
}

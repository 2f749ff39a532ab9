package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/middleware"
	"founder-llm-backend/internal/models"
	"founder-llm-backend/internal/services"
	"founder-llm-backend/internal/sse"
	"founder-llm-backend/internal/storage"
)

type chatRepository interface {
	Create(ctx context.Context, c *models.Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type messageLister interface {
	ListByChat(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.Message, error)
}

type chatFileLister interface {
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]*models.File, error)
}

type ChatHandler struct {
	chatRepo    chatRepository
	messageRepo messageLister
	fileRepo    chatFileLister
	store       storage.ObjectStore
	relay       *services.ChatRelay
	log         *logger.Logger
}

func NewChatHandler(
	chatRepo chatRepository,
	messageRepo messageLister,
	fileRepo chatFileLister,
	store storage.ObjectStore,
	relay *services.ChatRelay,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		fileRepo:    fileRepo,
		store:       store,
		relay:       relay,
		log:         log.With("handler", "chat"),
	}
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChatRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = models.DefaultChatTitle
	}

	chat := &models.Chat{UserID: middleware.GetUserID(r.Context()), Title: title}
	if err := h.chatRepo.Create(r.Context(), chat); err != nil {
		h.log.Error("create chat failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create chat", r))
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chats, err := h.chatRepo.ListByUser(r.Context(), userID, parseLimit(r, 50, 200))
	if err != nil {
		h.log.Error("list chats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list chats", r))
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// ownedChat loads the chat in the URL and writes 404 if it is missing or not
// the caller's.
func (h *ChatHandler) ownedChat(w http.ResponseWriter, r *http.Request) (*models.Chat, bool) {
	chatID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return nil, false
	}

	chat, err := h.chatRepo.GetByID(r.Context(), chatID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		h.log.Error("load chat failed", "chat_id", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load chat", r))
		return nil, false
	}
	if err != nil || chat.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		return nil, false
	}
	return chat, true
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// Delete removes stored objects of the chat's files first, best-effort, then
// the chat with its messages, files and chunks.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	files, err := h.fileRepo.ListByChat(r.Context(), chat.ID)
	if err != nil {
		h.log.Error("list chat files failed", "chat_id", chat.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete chat", r))
		return
	}
	for _, f := range files {
		if err := h.store.Delete(r.Context(), f.FilePath); err != nil {
			h.log.Warn("failed to delete stored object", "file_id", f.ID, "key", f.FilePath, "error", err)
		}
	}

	if err := h.chatRepo.Delete(r.Context(), chat.ID); err != nil {
		h.log.Error("delete chat failed", "chat_id", chat.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete chat", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	messages, err := h.messageRepo.ListByChat(r.Context(), chat.ID, parseLimit(r, 100, 500))
	if err != nil {
		h.log.Error("list messages failed", "chat_id", chat.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list messages", r))
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

const unavailableMessage = "The model is unavailable right now. Please try again."

// SendMessage relays one model reply as server-sent events. Validation and
// ownership failures are plain JSON errors. Provider failures always arrive
// as an error frame followed by [DONE].
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		h.log.Error("streaming unsupported", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Streaming is not supported", r))
		return
	}

	reply, err := h.relay.Open(r.Context(), services.SendMessageInput{
		ChatID:  chatID,
		UserID:  middleware.GetUserID(r.Context()),
		Message: req.Message,
		FileIDs: req.FileIDs,
	})
	if err != nil {
		var (
			unavailable *services.UpstreamUnavailableError
			interrupted *services.UpstreamInterruptedError
		)
		switch {
		case errors.Is(err, context.Canceled):
			h.log.Info("client disconnected before the first fragment", "chat_id", chatID)
		case errors.As(err, &unavailable):
			h.log.Warn("model provider unavailable", "chat_id", chatID, "error", err)
			_ = stream.Error(unavailableMessage)
			_ = stream.Done()
		case errors.As(err, &interrupted):
			h.log.Warn("model stream timed out before the first fragment", "chat_id", chatID, "error", err)
			_ = stream.Error(services.InterruptedMessage)
			_ = stream.Done()
		default:
			handleServiceError(w, r, err)
		}
		return
	}

	stream.Start()
	msg, err := reply.Forward(stream)
	switch {
	case errors.Is(err, context.Canceled):
		h.log.Info("stream cancelled by client", "chat_id", chatID)
	case err != nil:
		h.log.Warn("stream ended with error", "chat_id", chatID, "error", err)
	case msg != nil:
		h.log.Debug("stream completed", "chat_id", chatID, "message_id", msg.ID, "chars", len(msg.Content))
	}
}

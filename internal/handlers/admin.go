package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/models"
)

type adminRepository interface {
	Overview(ctx context.Context) (*models.AdminOverview, error)
	ListUsers(ctx context.Context) ([]*models.UserSummary, error)
}

type userChatLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error)
	ListAll(ctx context.Context, limit int) ([]*models.Chat, error)
}

type userFileLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, limit int) ([]*models.File, error)
}

// AdminHandler serves cross-user read-only views. Routes are guarded by the
// admin key middleware.
type AdminHandler struct {
	adminRepo   adminRepository
	chatRepo    userChatLister
	fileRepo    userFileLister
	messageRepo messageLister
	log         *logger.Logger
}

func NewAdminHandler(adminRepo adminRepository, chatRepo userChatLister, fileRepo userFileLister, messageRepo messageLister, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		adminRepo:   adminRepo,
		chatRepo:    chatRepo,
		fileRepo:    fileRepo,
		messageRepo: messageRepo,
		log:         log.With("handler", "admin"),
	}
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.adminRepo.Overview(r.Context())
	if err != nil {
		h.log.Error("admin overview failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load overview", r))
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.adminRepo.ListUsers(r.Context())
	if err != nil {
		h.log.Error("admin list users failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list users", r))
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Chats lists chats across all users, most recently active first.
func (h *AdminHandler) Chats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatRepo.ListAll(r.Context(), parseLimit(r, 100, 500))
	if err != nil {
		h.log.Error("admin list all chats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list chats", r))
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *AdminHandler) UserChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}
	chats, err := h.chatRepo.ListByUser(r.Context(), userID, parseLimit(r, 100, 500))
	if err != nil {
		h.log.Error("admin list chats failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list chats", r))
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *AdminHandler) UserFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}
	files, err := h.fileRepo.ListByUser(r.Context(), userID, nil, parseLimit(r, 100, 500))
	if err != nil {
		h.log.Error("admin list files failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list files", r))
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *AdminHandler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}
	messages, err := h.messageRepo.ListByChat(r.Context(), chatID, parseLimit(r, 100, 500))
	if err != nil {
		h.log.Error("admin list messages failed", "chat_id", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list messages", r))
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

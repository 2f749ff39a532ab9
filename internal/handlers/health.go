package handlers

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       pinger
	redis    pinger
	provider string
}

func NewHealthHandler(db, redis pinger, provider string) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, provider: provider}
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":  "founder-llm-backend",
		"status":   "running",
		"provider": h.provider,
	})
}

// Health reports "ok" only when Postgres and Redis both answer.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	status, code := "ok", http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unavailable"
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = "unavailable"
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/micro-ha/deck-automations/plugin/internal/controller"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// InstanceProvider exposes the keys the controller currently tracks.
type InstanceProvider interface {
	Snapshot() []controller.InstanceView
}

// HistoryProvider reads persisted trigger attempts.
type HistoryProvider interface {
	ListRecent(ctx context.Context, limit int) ([]model.TriggerRecord, error)
	ListForInstance(ctx context.Context, instanceID string, limit int) ([]model.TriggerRecord, error)
}

// API groups HTTP handlers and dependencies.
type API struct {
	instances InstanceProvider
	history   HistoryProvider
	logger    *slog.Logger
}

// New creates HTTP handlers. history may be nil when persistence is disabled.
func New(instances InstanceProvider, history HistoryProvider, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{instances: instances, history: history, logger: logger}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness and how many keys are on screen.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"instances": len(a.instances.Snapshot()),
		"history":   a.history != nil,
	})
}

// ListInstances returns every tracked key with its current view.
func (a *API) ListInstances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.instances.Snapshot()})
}

// GetInstance returns one tracked key.
func (a *API) GetInstance(w http.ResponseWriter, _ *http.Request, instanceID string) {
	for _, item := range a.instances.Snapshot() {
		if item.InstanceID == instanceID {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "Instance not found")
}

// ListHistory returns recent trigger attempts, newest first. Supports
// ?limit=N and ?instance=ID.
func (a *API) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = value
	}
	if a.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []model.TriggerRecord{}})
		return
	}

	var (
		items []model.TriggerRecord
		err   error
	)
	if instanceID := strings.TrimSpace(r.URL.Query().Get("instance")); instanceID != "" {
		items, err = a.history.ListForInstance(r.Context(), instanceID, limit)
	} else {
		items, err = a.history.ListRecent(r.Context(), limit)
	}
	if err != nil {
		a.logger.Error("list history failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "Could not read trigger history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

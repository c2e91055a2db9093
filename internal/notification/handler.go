package notification

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/middleware"
)

type Handler struct {
	bridge *Bridge
}

func NewHandler(bridge *Bridge) *Handler {
	return &Handler{bridge: bridge}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	if skip < 0 {
		skip = 0
	}
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	notifications, total, err := h.bridge.List(r.Context(), caller, limit, skip, unreadOnly)
	if err != nil {
		respondError(w, err)
		return
	}
	unread, err := h.bridge.UnreadCount(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"notifications": notifications,
		"unreadCount":   unread,
		"total":         total,
		"hasMore":       skip+len(notifications) < total,
	})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return
	}
	count, err := h.bridge.UnreadCount(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "unreadCount": count})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.bridge.MarkOneRead(r.Context(), id, caller); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notification marked as read"})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return
	}
	if err := h.bridge.MarkAllRead(r.Context(), caller); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All notifications marked as read"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.bridge.Delete(r.Context(), id, caller); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notification deleted"})
}

func callerAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperr.Validation("invalid id"))
		return uuid.Nil, uuid.Nil, false
	}
	return caller, id, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, apperr.HTTPStatus(err), map[string]any{
		"success": false,
		"message": apperr.UserMessage(err),
	})
}

package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/middleware"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// UserDirectory resolves caller display info for presence events. This keeps
// the chat package decoupled from the user service.
type UserDirectory interface {
	GetPublic(ctx context.Context, id uuid.UUID) (user.Public, error)
}

type Handler struct {
	engine *Engine
	hub    *Hub
	users  UserDirectory
	logger *slog.Logger
}

func NewHandler(engine *Engine, hub *Hub, users UserDirectory, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, hub: hub, users: users, logger: logger}
}

// ServeWs upgrades an authenticated request to a websocket connection,
// registers it for presence and starts the pumps.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.CallerID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pub, err := h.users.GetPublic(r.Context(), callerID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(h.hub, h.engine, conn, pub, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// --- REST surface ---

type createConversationRequest struct {
	Type           ConversationType `json:"type"`
	ParticipantID  uuid.UUID        `json:"participantId"`
	ParticipantIDs []uuid.UUID      `json:"participantIds"`
	Name           string           `json:"name"`
}

type sendMessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	ReplyTo     *uuid.UUID   `json:"replyTo"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type setRoleRequest struct {
	Role Role `json:"role"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return
	}
	page, limit := pageParams(r, 20)

	convs, total, err := h.engine.ListConversations(r.Context(), caller, page, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"conversations": convs,
		"pagination":    NewPagination(page, limit, total),
	})
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		respondError(w, apperr.Unauthenticated("missing caller identity"))
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Validation("malformed request body"))
		return
	}
	if req.Type == "" {
		req.Type = ConversationDirect
	}

	switch req.Type {
	case ConversationDirect:
		if req.Name != "" {
			respondError(w, apperr.Validation("direct conversations cannot be named"))
			return
		}
		if req.ParticipantID == uuid.Nil {
			respondError(w, apperr.Validation("participantId is required"))
			return
		}
		conv, created, err := h.engine.CreateDirect(r.Context(), caller, req.ParticipantID)
		if err != nil {
			respondError(w, err)
			return
		}
		status := http.StatusOK
		msg := "Conversation already exists"
		if created {
			status = http.StatusCreated
			msg = "Conversation created successfully"
		}
		respondJSON(w, status, map[string]any{"success": true, "message": msg, "conversation": conv})

	case ConversationGroup:
		conv, err := h.engine.CreateGroup(r.Context(), caller, req.Name, req.ParticipantIDs)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"success": true, "message": "Conversation created successfully", "conversation": conv,
		})

	default:
		respondError(w, apperr.Validation("unknown conversation type"))
	}
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	conv, err := h.engine.GetConversation(r.Context(), caller, convID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": conv})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteOrLeave(r.Context(), caller, convID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation left successfully"})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	page, limit := pageParams(r, 50)

	msgs, total, err := h.engine.ListMessages(r.Context(), caller, convID, page, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"messages":   msgs,
		"pagination": NewPagination(page, limit, total),
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Validation("malformed request body"))
		return
	}

	pub, err := h.users.GetPublic(r.Context(), caller)
	if err != nil {
		respondError(w, err)
		return
	}

	msg, err := h.engine.Send(r.Context(), pub, convID, req.Content, req.Attachments, req.ReplyTo)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true, "message": "Message sent successfully", "data": msg,
	})
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	caller, msgID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Validation("malformed request body"))
		return
	}

	msg, err := h.engine.EditMessage(r.Context(), caller, msgID, req.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true, "message": "Message updated successfully", "data": msg,
	})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, msgID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteMessage(r.Context(), caller, msgID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Message deleted successfully"})
}

func (h *Handler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	caller, msgID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.engine.MarkOneRead(r.Context(), caller, msgID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Message marked as read"})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.engine.MarkRead(r.Context(), caller, convID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All messages marked as read"})
}

func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		respondError(w, apperr.Validation("userId is required"))
		return
	}
	if err := h.engine.AddParticipant(r.Context(), caller, convID, req.UserID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Participant added"})
}

func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, apperr.Validation("invalid user id"))
		return
	}
	if err := h.engine.RemoveParticipant(r.Context(), caller, convID, target); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Participant removed"})
}

func (h *Handler) SetParticipantRole(w http.ResponseWriter, r *http.Request) {
	caller, convID, ok := h.callerAndID(w, r)
	if !ok {
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, apperr.Validation("invalid user id"))
		return
	}
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Validation("malformed request body"))
		return
	}
	if err := h.engine.SetParticipantRole(r.Context(), caller, convID, target, req.Role); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Role updated"})
}

// callerAndID pulls the authenticated caller and the {id} route param.
func (h *Handler) callerAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
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

func pageParams(r *http.Request, defaultLimit int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
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

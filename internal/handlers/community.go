package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/types"
)

type SuggestionHandler struct {
	suggestions *services.SuggestionService
}

// SuggestionRouter registers book purchase suggestions.
func SuggestionRouter(r chi.Router, suggestions *services.SuggestionService, auth *Authenticator) {
	handler := &SuggestionHandler{suggestions: suggestions}

	r.Use(auth.RequireAuth)
	r.Post("/", handler.CreateSuggestion)
	r.Get("/me", handler.ListMySuggestions)
	r.Group(func(r chi.Router) {
		r.Use(requireStaff)
		r.Get("/", handler.ListSuggestions)
		r.Patch("/{suggestionID}", handler.UpdateSuggestion)
	})
}

type SuggestionRequest struct {
	Title  string `json:"title" validate:"required,max=255"`
	Author string `json:"author" validate:"max=255"`
	Note   string `json:"note" validate:"max=1000"`
}

type SuggestionStatusRequest struct {
	Status types.SuggestionStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

func (h *SuggestionHandler) CreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req SuggestionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	created, err := h.suggestions.Create(r.Context(), actor(r), types.BookSuggestion{
		Title:  req.Title,
		Author: strings.TrimSpace(req.Author),
		Note:   strings.TrimSpace(req.Note),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *SuggestionHandler) ListMySuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.suggestions.ListMine(r.Context(), actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSuggestions(w, suggestions)
}

func (h *SuggestionHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	status := types.SuggestionStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	suggestions, err := h.suggestions.List(r.Context(), status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSuggestions(w, suggestions)
}

func writeSuggestions(w http.ResponseWriter, suggestions []types.BookSuggestion) {
	if suggestions == nil {
		suggestions = []types.BookSuggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *SuggestionHandler) UpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "suggestionID", "suggestion")
	if !ok {
		return
	}
	var req SuggestionStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	updated, err := h.suggestions.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type NotificationHandler struct {
	notifications *services.NotificationService
}

// NotificationRouter registers the caller's inbox.
func NotificationRouter(r chi.Router, notifications *services.NotificationService, auth *Authenticator) {
	handler := &NotificationHandler{notifications: notifications}

	r.Use(auth.RequireAuth)
	r.Get("/", handler.ListNotifications)
	r.Get("/unread-count", handler.UnreadCount)
	r.Patch("/read-all", handler.MarkAllRead)
	r.Patch("/{notificationID}/read", handler.MarkRead)
	r.Delete("/{notificationID}", handler.DeleteNotification)
}

type NotificationListResponse struct {
	Data []types.Notification `json:"data"`
	Meta types.PageMeta       `json:"meta"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	notifications, meta, err := h.notifications.List(r.Context(), actor(r).ID, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []types.Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationListResponse{Data: notifications, Meta: meta})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.UnreadCount(r.Context(), actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "notificationID", "notification")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), id, actor(r).ID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkAllRead(r.Context(), actor(r).ID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "all notifications marked as read"})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "notificationID", "notification")
	if !ok {
		return
	}
	if err := h.notifications.Delete(r.Context(), id, actor(r).ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

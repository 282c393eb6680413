package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type NotificationsResponse struct {
	Success       bool                  `json:"success"`
	Notifications []models.Notification `json:"notifications"`
	Total         int                   `json:"total"`
}

// ListNotifications handles GET /api/notifications?unread=true&limit=50.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.notifications.ListForUser(r.Context(), who, unread, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Success: true, Notifications: list, Total: len(list)})
}

// MarkNotificationRead handles PUT /api/notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), who, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Notification marked as read"})
}

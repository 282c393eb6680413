package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/go-chi/chi/v5"
)

// CreateGroupRequest creates a group from explicit lists, an enrollment, or a
// course taught by a mentor.
type CreateGroupRequest struct {
	DisplayName  string   `json:"display_name"`
	Members      []string `json:"members,omitempty"`
	Staff        []string `json:"staff,omitempty"`
	EnrollmentID string   `json:"enrollment_id,omitempty"`
	CourseID     string   `json:"course_id,omitempty"`
	MentorID     string   `json:"mentor_id,omitempty"`
}

type IndividualRequest struct {
	UserID      string `json:"user_id"`
	MentorID    string `json:"mentor_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type MembersRequest struct {
	Members []string `json:"members,omitempty"`
	Staff   []string `json:"staff,omitempty"`
}

type StatusRequest struct {
	Status models.ConversationStatus `json:"status"`
}

type ConversationResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message,omitempty"`
	Conversation *models.Conversation `json:"conversation"`
}

type ListConversationsResponse struct {
	Success       bool                         `json:"success"`
	Conversations []models.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
}

// CreateGroupConversation handles POST /api/conversations/group.
func (h *Handler) CreateGroupConversation(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := services.GroupInput{DisplayName: req.DisplayName, CreatorID: who}
	var err error
	if in.Members, err = identity.NormalizeAll(req.Members); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Staff, err = identity.NormalizeAll(req.Staff); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Provenance.EnrollmentID, err = optionalID(req.EnrollmentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Provenance.CourseID, err = optionalID(req.CourseID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.Provenance.MentorID, err = optionalID(req.MentorID); err != nil {
		h.writeError(w, r, err)
		return
	}

	conv, err := h.conversations.CreateGroup(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ConversationResponse{
		Success:      true,
		Message:      "Group conversation created",
		Conversation: conv,
	})
}

// CreateOrGetIndividualConversation handles POST /api/conversations/individual.
// The caller must be one of the two parties.
func (h *Handler) CreateOrGetIndividualConversation(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	var req IndividualRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, err := identity.Normalize(req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mentorID, err := identity.Normalize(req.MentorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if who != userID && who != mentorID {
		writeMessage(w, http.StatusForbidden, "You can only open conversations you take part in")
		return
	}

	conv, err := h.conversations.FindOrCreateIndividual(r.Context(), userID, mentorID, req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Success: true, Conversation: conv})
}

// ListConversations handles GET /api/conversations?kind=group|individual.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	kind := models.ConversationKind(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind"))))
	list, err := h.conversations.List(r.Context(), who, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListConversationsResponse{
		Success:       true,
		Conversations: list,
		Total:         len(list),
	})
}

// GetConversation handles GET /api/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	conv, err := h.conversations.Get(r.Context(), id, who)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Success: true, Conversation: conv})
}

// AddMembers handles POST /api/conversations/{id}/members.
func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, true)
}

// RemoveMembers handles DELETE /api/conversations/{id}/members.
func (h *Handler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, false)
}

func (h *Handler) changeMembers(w http.ResponseWriter, r *http.Request, add bool) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req MembersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	members, err := identity.NormalizeAll(req.Members)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	staff, err := identity.NormalizeAll(req.Staff)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(members)+len(staff) == 0 {
		writeMessage(w, http.StatusBadRequest, "members or staff is required")
		return
	}

	var conv *models.Conversation
	if add {
		conv, err = h.conversations.AddMembers(r.Context(), id, who, members, staff)
	} else {
		conv, err = h.conversations.RemoveMembers(r.Context(), id, who, append(members, staff...))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Success: true, Conversation: conv})
}

// SetConversationStatus handles PUT /api/conversations/{id}/status.
func (h *Handler) SetConversationStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	conv, err := h.conversations.SetStatus(r.Context(), id, who, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Success: true, Conversation: conv})
}

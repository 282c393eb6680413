package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AnshRaj112/campus-chat-backend/internal/middleware"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"go.uber.org/zap"
)

// Handler serves the messaging HTTP and WebSocket API.
type Handler struct {
	conversations  *services.ConversationService
	messages       *services.MessageService
	notifications  *services.NotificationDispatcher
	broadcaster    realtime.Broadcaster
	maxUploadBytes int64
	log            *zap.SugaredLogger
}

type Options struct {
	Conversations  *services.ConversationService
	Messages       *services.MessageService
	Notifications  *services.NotificationDispatcher
	Broadcaster    realtime.Broadcaster
	MaxUploadBytes int64
	Log            *zap.SugaredLogger
}

func New(o Options) *Handler {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 25 << 20
	}
	if o.Log == nil {
		o.Log = zap.NewNop().Sugar()
	}
	return &Handler{
		conversations:  o.Conversations,
		messages:       o.Messages,
		notifications:  o.Notifications,
		broadcaster:    o.Broadcaster,
		maxUploadBytes: o.MaxUploadBytes,
		log:            o.Log,
	}
}

// StatusResponse is the body of failed requests and of actions with nothing to return.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, StatusResponse{Success: false, Message: message})
}

// StatusFor maps core errors onto HTTP statuses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidIdentity), errors.Is(err, services.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUploadFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError reports err to the client. Internal failures are logged and hidden.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "Internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

// requester returns the identity set by the session middleware.
func requester(w http.ResponseWriter, r *http.Request) (identity.ID, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return id, true
}

// pathID normalizes a URL parameter; malformed ids are rejected with 400.
func pathID(w http.ResponseWriter, raw string) (identity.ID, bool) {
	id, err := identity.Normalize(raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return "", false
	}
	return id, true
}

// optionalID normalizes raw, treating an empty string as absent.
func optionalID(raw string) (identity.ID, error) {
	if raw == "" {
		return "", nil
	}
	return identity.Normalize(raw)
}

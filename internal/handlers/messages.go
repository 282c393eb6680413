package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// SendMessageRequest is the JSON form of a text-only send. Attachments use
// multipart/form-data with a "text" field and one or more "files" parts.
type SendMessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Msg     *models.Message `json:"msg,omitempty"`
}

// HistoryResponse is returned when loading conversation history.
type HistoryResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// SendMessage handles POST /api/conversations/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	convID, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	in := services.SendInput{ConversationID: convID, SenderID: who}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		text, files, err := h.readMultipart(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeMessage(w, http.StatusRequestEntityTooLarge, "Attachments are too large")
				return
			}
			writeMessage(w, http.StatusBadRequest, "Failed to parse form: "+err.Error())
			return
		}
		in.Text, in.Files = text, files
	} else {
		var req SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		in.Text = req.Text
	}

	msg, err := h.messages.Send(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Success: true, Message: "Message sent", Msg: msg})
}

func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request) (string, []services.FileUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, err
	}

	var files []services.FileUpload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readPart(fh)
		if err != nil {
			return "", nil, err
		}
		files = append(files, f)
	}
	return r.FormValue("text"), files, nil
}

func readPart(fh *multipart.FileHeader) (services.FileUpload, error) {
	file, err := fh.Open()
	if err != nil {
		return services.FileUpload{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return services.FileUpload{}, err
	}
	return services.FileUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// GetHistory handles GET /api/conversations/{id}/messages.
// Query params:
//
//	before (optional message id; returns older messages)
//	limit  (optional, default 50, max 100)
//
// Without either parameter the full history is returned.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	convID, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("before") == "" && q.Get("limit") == "" {
		msgs, err := h.messages.History(r.Context(), convID, who)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Messages: msgs})
		return
	}

	before, err := optionalID(q.Get("before"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	page, err := h.messages.HistoryPage(r.Context(), convID, who, before, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Messages: page.Messages, HasMore: page.HasMore})
}

// GetMessage handles GET /api/messages/{id}.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	msg, err := h.messages.GetForMember(r.Context(), id, who)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Msg: msg})
}

// DeleteMessage handles DELETE /api/messages/{id}.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.messages.Delete(r.Context(), id, who); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Message deleted"})
}

// MarkRead handles POST /api/messages/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	msg, err := h.messages.MarkRead(r.Context(), id, who)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Msg: msg})
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 60 * time.Second
	wsReadLimit  = 64 * 1024
)

// chatUpgrader is the shared upgrader for chat WebSocket connections.
var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatClientMessage represents frames coming from the frontend over WebSocket.
type ChatClientMessage struct {
	Type           string `json:"type"` // "subscribe", "unsubscribe", "ping"
	ConversationID string `json:"conversation_id"`
}

// ChatWebSocket is the live event gateway. A connection starts with no
// subscriptions; clients subscribe to each conversation they are viewing and
// membership is checked per subscription.
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	who, ok := requester(w, r)
	if !ok {
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := h.broadcaster.Hub()
	session := hub.Register(string(who))
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		h.broadcaster.Disconnect(dctx, session)
	}()
	h.log.Debugw("chat session opened", "session", session.ID, "user", who)

	// Writer goroutine: forward hub events and keepalive pings to this connection.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-session.Events():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(evt); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg ChatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			hub.Send(session, errorEvent("", "malformed frame"))
			continue
		}
		h.handleClientFrame(ctx, session, msg)
	}

	cancel()
	<-writerDone
}

func (h *Handler) handleClientFrame(ctx context.Context, s *realtime.Session, msg ChatClientMessage) {
	hub := h.broadcaster.Hub()

	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		convID, err := identity.Normalize(msg.ConversationID)
		if err != nil {
			hub.Send(s, errorEvent(msg.ConversationID, "invalid conversation id"))
			return
		}
		// Non-members get the same answer whether or not the conversation exists.
		if _, err := h.conversations.Get(ctx, convID, identity.ID(s.UserID)); err != nil {
			hub.Send(s, errorEvent(string(convID), "cannot subscribe to this conversation"))
			return
		}
		if err := h.broadcaster.Join(ctx, s, string(convID)); err != nil {
			h.log.Warnw("subscribe failed", "session", s.ID, "conversation", convID, "error", err)
			hub.Send(s, errorEvent(string(convID), "subscribe failed"))
			return
		}
		hub.Send(s, realtime.Event{Type: realtime.EventTypeSubscribed, ConversationID: string(convID), Timestamp: time.Now().UTC()})

	case "unsubscribe":
		convID, err := identity.Normalize(msg.ConversationID)
		if err != nil {
			hub.Send(s, errorEvent(msg.ConversationID, "invalid conversation id"))
			return
		}
		if err := h.broadcaster.Leave(ctx, s, string(convID)); err != nil {
			h.log.Warnw("unsubscribe failed", "session", s.ID, "conversation", convID, "error", err)
		}
		hub.Send(s, realtime.Event{Type: realtime.EventTypeUnsubscribed, ConversationID: string(convID), Timestamp: time.Now().UTC()})

	case "ping":
		hub.Send(s, realtime.Event{Type: realtime.EventTypePong, Timestamp: time.Now().UTC()})

	default:
		hub.Send(s, errorEvent(msg.ConversationID, "unknown frame type"))
	}
}

func errorEvent(conversationID, message string) realtime.Event {
	return realtime.Event{
		Type:           realtime.EventTypeError,
		ConversationID: conversationID,
		Error:          message,
		Timestamp:      time.Now().UTC(),
	}
}

package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/security"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	// Browsers cannot set Authorization on websocket upgrades; accept the
	// token via the subprotocol list instead.
	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return ""
}

type clientEvent struct {
	Type        string   `json:"type"`
	RoomID      string   `json:"room_id,omitempty"`
	Content     string   `json:"content,omitempty"`
	IsAnonymous bool     `json:"is_anonymous,omitempty"`
	ReplyToID   *string  `json:"reply_to_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// MakeHandler returns an HTTP handler for the /ws endpoint. Authenticates via
// Bearer token (Authorization header or Sec-WebSocket-Protocol), then
// dispatches events:
//   - send_message              -> create & broadcast message_received
//   - typing_start/typing_stop  -> typing_indicator to other participants
//   - join_room/leave_room      -> user_joined/user_left to other participants
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	msgSvc *service.MessageService,
	allowedOrigins []string,
) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin:  makeCheckOrigin(allowedOrigins),
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		principal, err := tokens.Parse(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		hub.Register(principal.ID, conn)
		defer func() {
			hub.Unregister(principal.ID, conn)
			conn.Close()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var event clientEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				writeEvent(conn, map[string]any{"event": "error", "error": "invalid event"})
				continue
			}
			dispatch(r, hub, msgSvc, *principal, conn, event)
		}
	}
}

func dispatch(r *http.Request, hub *Hub, msgSvc *service.MessageService, principal domain.Principal, conn *websocket.Conn, event clientEvent) {
	ctx := r.Context()

	switch event.Type {
	case "send_message":
		// Send broadcasts message_received to the room's members itself.
		_, err := msgSvc.Send(ctx, principal, service.MessageCreateInput{
			RoomID:      event.RoomID,
			Content:     event.Content,
			IsAnonymous: event.IsAnonymous,
			ReplyToID:   event.ReplyToID,
			Attachments: event.Attachments,
		})
		if err != nil {
			writeEvent(conn, map[string]any{"event": "error", "error": err.Error(), "reason": domain.ReasonOf(err)})
			return
		}

	case "typing_start", "typing_stop":
		participants, err := msgSvc.RoomParticipants(ctx, event.RoomID)
		if err != nil {
			return
		}
		hub.BroadcastToUsers(withoutUser(participants, principal.ID), map[string]any{
			"event":     "typing_indicator",
			"room_id":   event.RoomID,
			"user_id":   principal.ID,
			"is_typing": event.Type == "typing_start",
			"at":        time.Now().UTC(),
		})

	case "join_room", "leave_room":
		participants, err := msgSvc.RoomParticipants(ctx, event.RoomID)
		if err != nil {
			return
		}
		name := "user_joined"
		if event.Type == "leave_room" {
			name = "user_left"
		}
		hub.BroadcastToUsers(withoutUser(participants, principal.ID), map[string]any{
			"event":   name,
			"room_id": event.RoomID,
			"user_id": principal.ID,
		})

	default:
		writeEvent(conn, map[string]any{"event": "error", "error": "unknown event type"})
	}
}

func withoutUser(ids []string, userID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func writeEvent(conn *websocket.Conn, payload any) {
	_ = conn.WriteJSON(payload)
}

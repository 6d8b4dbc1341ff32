package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dslachut/hawat/engine"
)

// ClientMessage is a chat message received over the websocket.
type ClientMessage struct {
	Message string `json:"message"`
}

// ServerMessage is sent back for every ClientMessage.
type ServerMessage struct {
	Type    string `json:"type"` // "reply" or "error"
	TurnID  string `json:"turn_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHTTPHandler serves /ws (chat over websocket) and /health.
func NewHTTPHandler(chatter Chatter, health func() map[string]any) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(chatter, w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}

func handleWebSocket(chatter Chatter, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := r.Context()
	for {
		var in ClientMessage
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SERVER] websocket read: %v", err)
			}
			return
		}

		turnID := uuid.New().String()
		resp := ServerMessage{Type: "reply", TurnID: turnID}
		out, err := chatter.Run(ctx, &engine.Input{UserMessage: in.Message, TurnID: turnID})
		switch {
		case errors.Is(err, engine.ErrEmptyMessage):
			resp.Type, resp.Error = "error", "message is required"
		case err != nil:
			resp.Type, resp.Error = "error", "chat failed"
		default:
			resp.Message = out.Text
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[SERVER] websocket write: %v", err)
			return
		}
	}
}

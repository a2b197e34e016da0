package realtime

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabhub/platform/internal/models"
)

const clientBuffer = 32

// Handler upgrades authenticated requests to websocket connections and
// services subscribe/unsubscribe frames until the peer goes away.
type Handler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

func NewHandler(hub *Hub, writeTimeout time.Duration) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime upgrade error: %v", err)
		return
	}

	client := NewClient(uuid.NewString(), clientBuffer)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go h.writePump(conn, client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, ok := models.ParseSubscribeFrame(data)
		if !ok {
			continue
		}
		if frame.Action == "unsubscribe" {
			client.Unsubscribe(frame.Table, frame.Filter)
			continue
		}
		client.Subscribe(frame.Table, frame.Filter)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	defer conn.Close()
	for payload := range client.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// pongWait/pingPeriod mirror ClaraVerse's workflow WebSocket keepalive:
// a read deadline long enough to survive proxy idle timeouts, refreshed
// on every pong, with a ping sent well before it expires.
const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve upgrades an HTTP request to a WebSocket, registers it with the
// hub under workflowID/userID, and blocks reading client messages until
// the connection closes or ctxDone fires. It owns the full connection
// lifecycle: Connect on entry, Disconnect on exit, a keepalive ping
// goroutine, and dispatch of decoded messages to h.HandleMessage.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, workflowID, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := h.Connect(conn, workflowID, userID)
	defer h.Disconnect(sub)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sub.subMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				sub.subMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("hub: invalid client message on workflow %s: %v", workflowID, err)
			continue
		}
		h.HandleMessage(workflowID, msg)
	}
}

// Package hub implements the collaboration hub (spec §4.4): per-workflow
// sets of live subscriber connections, cursor positions by user id, and
// broadcast of both editor collaboration messages (cursor_update,
// node_update, workflow_save, chat_message) and engine-originated events
// (execution_update, node_started, node_completed, node_failed,
// user_joined, user_left). Grounded on original_source's ConnectionManager
// (backend/app/services/websocket_manager.py) with the mutex-guarded
// per-connection writer and ping-keepalive pattern of ClaraVerse's
// WorkflowWebSocketHandler (ClaraVerse backend/internal/handlers/
// workflow_websocket.go), built on github.com/gorilla/websocket.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is the envelope sent to subscribers. Fields are populated
// per message type; omitempty keeps the wire payload close to the
// original's per-type dict shapes.
type Message struct {
	Type        string      `json:"type"`
	UserID      string      `json:"user_id,omitempty"`
	NodeID      string      `json:"node_id,omitempty"`
	Changes     interface{} `json:"changes,omitempty"`
	Position    interface{} `json:"position,omitempty"`
	Version     interface{} `json:"version,omitempty"`
	ChatMessage string      `json:"message,omitempty"`
	ExecutionID string      `json:"execution_id,omitempty"`
	WorkflowID  string      `json:"workflow_id,omitempty"`
	Update      interface{} `json:"update,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   string      `json:"timestamp"`
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// ActiveUser describes one live subscriber for the "who's here" query.
type ActiveUser struct {
	UserID         string      `json:"user_id"`
	ConnectedAt    string      `json:"connected_at"`
	CursorPosition interface{} `json:"cursor_position"`
	LastActivity   string      `json:"last_activity"`
}

// cursorState is the last-known cursor position for one user in one workflow.
type cursorState struct {
	position  interface{}
	updatedAt string
}

// wsConn is the slice of *websocket.Conn the hub actually uses,
// narrowed so tests can exercise Hub/Subscriber with a fake connection
// instead of a real network socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// Subscriber is one live connection into a workflow's collaboration
// session. gorilla/websocket connections do not support concurrent
// writers, so every send goes through subMu.
type Subscriber struct {
	conn        wsConn
	workflowID  string
	userID      string
	connectedAt string

	subMu sync.Mutex
}

func newSubscriber(conn wsConn, workflowID, userID string) *Subscriber {
	return &Subscriber{
		conn:        conn,
		workflowID:  workflowID,
		userID:      userID,
		connectedAt: now(),
	}
}

func (s *Subscriber) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub holds, per workflow id, the set of live subscribers and a map of
// cursor positions by user id. All mutation of the subscriber/cursor
// maps is serialized under mu; broadcasts snapshot the subscriber set
// before sending so a slow or failing write never blocks Connect/
// Disconnect (spec §4.4 "Concurrency").
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Subscriber]bool  // workflowID -> subscribers
	cursors     map[string]map[string]cursorState // workflowID -> userID -> cursor
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		connections: make(map[string]map[*Subscriber]bool),
		cursors:     make(map[string]map[string]cursorState),
	}
}

// Connect registers a new subscriber for a workflow and broadcasts
// user_joined to its current peers (spec §4.4 "connect").
func (h *Hub) Connect(conn wsConn, workflowID, userID string) *Subscriber {
	sub := newSubscriber(conn, workflowID, userID)

	h.mu.Lock()
	if h.connections[workflowID] == nil {
		h.connections[workflowID] = make(map[*Subscriber]bool)
	}
	h.connections[workflowID][sub] = true
	h.mu.Unlock()

	h.BroadcastToWorkflow(workflowID, Message{
		Type:      "user_joined",
		UserID:    userID,
		Timestamp: now(),
	}, sub)

	return sub
}

// Disconnect removes a subscriber and its cursor, then broadcasts
// user_left to the remaining peers (spec §4.4 "disconnect").
func (h *Hub) Disconnect(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.connections[sub.workflowID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.connections, sub.workflowID)
		}
	}
	if cur, ok := h.cursors[sub.workflowID]; ok {
		delete(cur, sub.userID)
		if len(cur) == 0 {
			delete(h.cursors, sub.workflowID)
		}
	}
	h.mu.Unlock()

	h.BroadcastToWorkflow(sub.workflowID, Message{
		Type:      "user_left",
		UserID:    sub.userID,
		Timestamp: now(),
	}, nil)
}

// HandleMessage dispatches an incoming client message by type (spec
// §4.4 "handle_message"): cursor_update updates cursor state before
// broadcasting; node_update, workflow_save, and chat_message are
// re-broadcast as-is; anything else is logged and dropped.
func (h *Hub) HandleMessage(workflowID string, msg Message) {
	switch msg.Type {
	case "cursor_update":
		h.handleCursorUpdate(workflowID, msg)
	case "node_update", "workflow_save", "chat_message":
		msg.Timestamp = now()
		h.BroadcastToWorkflow(workflowID, msg, nil)
	default:
		log.Printf("hub: unknown message type %q for workflow %s", msg.Type, workflowID)
	}
}

func (h *Hub) handleCursorUpdate(workflowID string, msg Message) {
	if msg.UserID == "" || msg.Position == nil {
		return
	}

	stamp := now()
	h.mu.Lock()
	if h.cursors[workflowID] == nil {
		h.cursors[workflowID] = make(map[string]cursorState)
	}
	h.cursors[workflowID][msg.UserID] = cursorState{position: msg.Position, updatedAt: stamp}
	h.mu.Unlock()

	h.BroadcastToWorkflow(workflowID, Message{
		Type:      "cursor_update",
		UserID:    msg.UserID,
		Position:  msg.Position,
		Timestamp: stamp,
	}, nil)
}

// BroadcastToWorkflow sends msg to every current subscriber of
// workflowID except exclude (spec §4.4 "broadcast_to_workflow"). A
// subscriber whose send fails is treated as disconnected and removed;
// delivery is otherwise best-effort, at-most-once, with per-subscriber
// FIFO order relative to the hub's send order.
func (h *Hub) BroadcastToWorkflow(workflowID string, msg Message, exclude *Subscriber) {
	h.mu.RLock()
	set := h.connections[workflowID]
	subs := make([]*Subscriber, 0, len(set))
	for s := range set {
		if s != exclude {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var dead []*Subscriber
	for _, s := range subs {
		if err := s.send(msg); err != nil {
			log.Printf("hub: failed to send to subscriber (workflow=%s user=%s): %v", workflowID, s.userID, err)
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		h.Disconnect(s)
	}
}

// SendExecutionUpdate broadcasts an engine progress update to a
// workflow's subscribers (spec §4.4 "send_execution_update"), called
// by the hub.Recorder adapter as the engine observes node lifecycle
// transitions.
func (h *Hub) SendExecutionUpdate(workflowID, executionID string, update interface{}) {
	h.BroadcastToWorkflow(workflowID, Message{
		Type:        "execution_update",
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Update:      update,
		Timestamp:   now(),
	}, nil)
}

// ActiveUsers lists the live subscribers of a workflow with their last
// known cursor position and activity timestamp.
func (h *Hub) ActiveUsers(workflowID string) []ActiveUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.connections[workflowID]
	if len(set) == 0 {
		return nil
	}
	cursors := h.cursors[workflowID]

	users := make([]ActiveUser, 0, len(set))
	for s := range set {
		u := ActiveUser{
			UserID:       s.userID,
			ConnectedAt:  s.connectedAt,
			LastActivity: s.connectedAt,
		}
		if cur, ok := cursors[s.userID]; ok {
			u.CursorPosition = cur.position
			u.LastActivity = cur.updatedAt
		}
		users = append(users, u)
	}
	return users
}

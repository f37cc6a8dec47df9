package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is a wsConn that records sent frames instead of touching a
// real socket.
type fakeConn struct {
	mu       sync.Mutex
	sent     []Message
	failNext bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("write failed")
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) received() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestHub_ConnectBroadcastsUserJoinedExcludingJoiner(t *testing.T) {
	h := New()
	c1 := &fakeConn{}
	s1 := h.Connect(c1, "wf-1", "alice")
	defer h.Disconnect(s1)

	c2 := &fakeConn{}
	h.Connect(c2, "wf-1", "bob")

	if len(c1.received()) != 1 || c1.received()[0].Type != "user_joined" {
		t.Fatalf("expected alice to see bob's user_joined, got %v", c1.received())
	}
	if len(c2.received()) != 0 {
		t.Fatalf("expected bob (the joiner) to receive nothing, got %v", c2.received())
	}
}

func TestHub_DisconnectBroadcastsUserLeftAndDropsCursor(t *testing.T) {
	h := New()
	c1 := &fakeConn{}
	h.Connect(c1, "wf-1", "alice")
	c2 := &fakeConn{}
	s2 := h.Connect(c2, "wf-1", "bob")

	h.HandleMessage("wf-1", Message{Type: "cursor_update", UserID: "bob", Position: map[string]interface{}{"x": 1.0}})
	if len(h.ActiveUsers("wf-1")) != 2 {
		t.Fatalf("expected 2 active users before disconnect")
	}

	h.Disconnect(s2)

	users := h.ActiveUsers("wf-1")
	if len(users) != 1 || users[0].UserID != "alice" {
		t.Fatalf("expected only alice left, got %v", users)
	}

	found := false
	for _, m := range c1.received() {
		if m.Type == "user_left" && m.UserID == "bob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice to see bob's user_left, got %v", c1.received())
	}
}

func TestHub_HandleMessageRebroadcastsNodeUpdate(t *testing.T) {
	h := New()
	c1 := &fakeConn{}
	h.Connect(c1, "wf-1", "alice")
	c2 := &fakeConn{}
	h.Connect(c2, "wf-1", "bob")

	h.HandleMessage("wf-1", Message{Type: "node_update", NodeID: "n1", UserID: "bob", Changes: map[string]interface{}{"label": "new"}})

	found := false
	for _, m := range c1.received() {
		if m.Type == "node_update" && m.NodeID == "n1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice to receive the node_update, got %v", c1.received())
	}
}

func TestHub_BroadcastDropsFailingSubscriber(t *testing.T) {
	h := New()
	bad := &fakeConn{failNext: true}
	h.Connect(bad, "wf-1", "ghost")
	good := &fakeConn{}
	h.Connect(good, "wf-1", "alice")

	h.SendExecutionUpdate("wf-1", "exec-1", map[string]interface{}{"status": "running"})

	if len(h.ActiveUsers("wf-1")) != 1 {
		t.Fatalf("expected the failing subscriber to have been dropped, got %v", h.ActiveUsers("wf-1"))
	}
}

func TestRecorder_BroadcastsBoundExecutionLifecycle(t *testing.T) {
	h := New()
	conn := &fakeConn{}
	h.Connect(conn, "wf-1", "alice")

	r := NewRecorder(h)
	r.BindExecution("exec-1", "wf-1")

	ctx := context.Background()
	r.NodeStarted(ctx, "exec-1", "n1")
	r.NodeCompleted(ctx, "exec-1", "n1", map[string]interface{}{"ok": true}, time.Millisecond)
	r.NodeSkipped(ctx, "exec-1", "n1b")
	r.ExecutionFinished(ctx, "exec-1", "completed", nil)

	msgs := conn.received()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 execution_update broadcasts, got %d: %v", len(msgs), msgs)
	}
	for _, m := range msgs {
		if m.Type != "execution_update" || m.ExecutionID != "exec-1" {
			t.Fatalf("expected execution_update envelopes for exec-1, got %v", m)
		}
	}

	// After ExecutionFinished the binding is cleared; further calls are no-ops.
	r.NodeStarted(ctx, "exec-1", "n2")
	if len(conn.received()) != 4 {
		t.Fatalf("expected no further broadcasts after the binding was cleared")
	}
}

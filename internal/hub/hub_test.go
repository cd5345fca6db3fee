package hub_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"annotate/internal/hub"
	"annotate/internal/service"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) hub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m hub.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

// ─── Broadcast ───────────────────────────────────────────────

func TestBroadcastReachesClients(t *testing.T) {
	h := hub.New()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv, "")
	b := dial(t, srv, "")
	waitClients(t, h, 2)

	var emitter service.EventEmitter = h
	emitter.Emit(context.Background(), service.EventPageRendered, map[string]any{"page": 1})

	for _, conn := range []*websocket.Conn{a, b} {
		if m := read(t, conn); m.Type != service.EventPageRendered {
			t.Errorf("type = %q", m.Type)
		}
	}
}

func TestDocumentFilter(t *testing.T) {
	h := hub.New()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv, "?document=d2")
	waitClients(t, h, 1)

	h.Emit(context.Background(), service.EventAnnotationSaved, map[string]any{"documentId": "d1", "page": 1})
	h.Emit(context.Background(), service.EventAnnotationSaved, map[string]any{"documentId": "d2", "page": 3})

	m := read(t, conn)
	data, _ := m.Data.(map[string]any)
	if data["documentId"] != "d2" {
		t.Errorf("first delivered event = %+v, want the d2 one", m)
	}
}

func TestPingPong(t *testing.T) {
	h := hub.New()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	if m := read(t, conn); m.Type != "pong" {
		t.Errorf("type = %q, want pong", m.Type)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := hub.New()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}

func TestClientMessagesReachCallback(t *testing.T) {
	h := hub.New()
	got := make(chan string, 1)
	h.OnMessage(func(msgType string, data json.RawMessage) {
		got <- msgType + " " + string(data)
	})
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	msg := `{"type":"viewport","data":{"width":800,"height":600,"devicePixelRatio":2}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-got:
		if s != `viewport {"width":800,"height":600,"devicePixelRatio":2}` {
			t.Errorf("callback got %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not called")
	}
}

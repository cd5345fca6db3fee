// Package hub broadcasts engine and service events to websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the frame written to clients for each event.
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"ts"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// document filters events to one document; empty receives all.
	document string
}

// Hub implements service.EventEmitter. Slow clients drop messages rather
// than block the emitter.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	closed    bool
	onMessage func(msgType string, data json.RawMessage)
}

func New() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// documentOf extracts a documentId field from event payloads.
func documentOf(data any) string {
	switch d := data.(type) {
	case map[string]any:
		if id, ok := d["documentId"].(string); ok {
			return id
		}
	case interface{ GetDocumentID() string }:
		return d.GetDocumentID()
	}
	return ""
}

func (h *Hub) Emit(_ context.Context, event string, data any) {
	payload, err := json.Marshal(Message{Type: event, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("hub: encode %s: %v", event, err)
		return
	}
	doc := documentOf(data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.document != "" && doc != "" && c.document != doc {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// drop on slow client
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The optional
// ?document= query parameter narrows delivery to one document.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade: %v", err)
		return
	}
	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		document: r.URL.Query().Get("document"),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// OnMessage registers fn for client messages other than ping. Set it
// before serving.
func (h *Hub) OnMessage(fn func(msgType string, data json.RawMessage)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// readPump answers application pings and hands other messages to the
// OnMessage callback.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: unexpected close: %v", err)
			}
			return
		}
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(message, &msg) != nil {
			continue
		}
		if msg.Type != "ping" {
			h.mu.RLock()
			fn := h.onMessage
			h.mu.RUnlock()
			if fn != nil && msg.Type != "" {
				fn(msg.Type, msg.Data)
			}
			continue
		}
		pong, _ := json.Marshal(Message{Type: "pong", Timestamp: time.Now().UnixMilli()})
		h.mu.RLock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- pong:
			default:
			}
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("hub: write: %v", err)
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

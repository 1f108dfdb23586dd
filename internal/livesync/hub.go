package livesync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

type ClientMetrics interface {
	SetWSClients(n int)
}

// Hub fans the view out to websocket clients. New clients get the current
// view immediately.
type Hub struct {
	upgrader websocket.Upgrader
	current  func() View
	metrics  ClientMetrics

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(current func() View, metrics ClientMetrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		current: current,
		metrics: metrics,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade", "error", err)
		return
	}
	// hold the lock so no broadcast interleaves with the first frame
	h.mu.Lock()
	if h.current != nil {
		if err := writeView(conn, h.current()); err != nil {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	h.clients[conn] = struct{}{}
	h.setGauge()
	h.mu.Unlock()

	go h.readPump(conn)
}

// Broadcast implements Broadcaster. Clients whose write fails are dropped.
func (h *Hub) Broadcast(v View) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode view", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = c.Close()
			delete(h.clients, c)
		}
	}
	h.setGauge()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
		delete(h.clients, c)
	}
	h.setGauge()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.setGauge()
	h.mu.Unlock()
}

// setGauge expects h.mu held.
func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.SetWSClients(len(h.clients))
	}
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *websocket.Conn) {
	defer func() {
		h.remove(c)
		_ = c.Close()
	}()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func writeView(c *websocket.Conn, v View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

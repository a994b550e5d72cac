// Package live pushes player change events to websocket clients.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const broadcastBuffer = 1000

// Hub keeps the set of connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	onCount func(int)
}

// NewHub creates a hub. onCount, when set, is called with the client count
// after every change.
func NewHub(onCount func(int)) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		onCount:    onCount,
	}
}

// Run serves register, unregister and broadcast requests until ctx ends,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	slog.Info("live hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues msg for every client. The message is dropped when the
// queue is full.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("live broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	slog.Debug("live client connected", "client_id", c.ID, "clients", n)
	h.count(n)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		slog.Debug("live client disconnected", "client_id", c.ID, "clients", n)
		h.count(n)
	}
}

// fanOut sends msg to every client. A client whose buffer is full is too
// slow to keep up and is dropped.
func (h *Hub) fanOut(msg []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !c.trySend(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("live client too slow, disconnecting", "client_id", c.ID)
		h.remove(c)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	slog.Info("live hub stopped", "disconnected", n)
	h.count(0)
}

func (h *Hub) count(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Handler upgrades requests to websocket connections served by the hub.
// checkOrigin decides which browser origins may connect; nil allows all.
func (h *Hub) Handler(checkOrigin func(*http.Request) bool) http.Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		c := newClient(uuid.New().String(), conn, h)
		h.Register(c)

		go c.writePump()
		go c.readPump()
	})
}

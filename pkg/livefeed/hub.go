package livefeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards on the LAN connect from other origins
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub broadcasts every stored record to the connected websocket clients.
type Hub struct {
	logger *zap.Logger

	clientsMutex sync.RWMutex
	clients      map[*client]struct{}
	closed       bool

	latestMutex sync.RWMutex
	latest      []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish implements ingest.Publisher.
func (h *Hub) Publish(record meterdb.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		h.logger.Error("failed to encode record", zap.Error(err))
		return
	}

	h.latestMutex.Lock()
	h.latest = payload
	h.latestMutex.Unlock()

	h.clientsMutex.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMutex.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.remove(c)
		}
	}
}

func (h *Hub) Count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}

	// Send the current record immediately if available
	h.latestMutex.RLock()
	latest := h.latest
	h.latestMutex.RUnlock()
	if latest != nil {
		if err := c.write(latest); err != nil {
			conn.Close()
			return
		}
	}

	if !h.add(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// add registers c unless the hub has been closed.
func (h *Hub) add(c *client) bool {
	h.clientsMutex.Lock()
	if h.closed {
		h.clientsMutex.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	h.clientsMutex.Unlock()
	h.logger.Debug("websocket client connected", zap.Int("clients", h.Count()))
	return true
}

func (h *Hub) remove(c *client) {
	h.clientsMutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.clientsMutex.Unlock()
	if ok {
		c.conn.Close()
	}
}

// Close disconnects every client. Clients connecting afterwards are turned away.
func (h *Hub) Close() {
	h.clientsMutex.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.closed = true
	h.clientsMutex.Unlock()

	for c := range clients {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}

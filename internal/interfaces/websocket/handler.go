// Package websocket serves the live event feed at GET /ws. The feed is
// one-directional: run lifecycle events from the bus are broadcast to
// every connected client, inbound frames are ignored except for pings.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ghostagent/ghost/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API key gate runs before the upgrade, so origins are open.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is one feed message on the wire.
type Frame struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	clients    map[string]*client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	logger     *zap.Logger
	mu         sync.RWMutex
	seq        atomic.Int64
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.With(zap.String("component", "ws-hub")),
	}
}

// Attach subscribes the hub to every bus event. Call once before Run.
func (h *Hub) Attach(bus eventbus.Bus) {
	bus.Subscribe("*", func(ctx context.Context, ev eventbus.Event) {
		data, err := json.Marshal(Frame{
			Type:      ev.Type(),
			Payload:   ev.Payload(),
			Timestamp: ev.Timestamp().Unix(),
		})
		if err != nil {
			return
		}
		select {
		case h.broadcast <- data:
		default:
			// feed is best-effort, drop under backpressure
		}
	})
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*client)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Info("Feed client connected", zap.String("client_id", c.id))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("Feed client disconnected", zap.String("client_id", c.id))
		case message := <-h.broadcast:
			h.mu.RLock()
			for id, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow client, disconnect rather than block the feed
					delete(h.clients, id)
					close(c.send)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount reports connected feed consumers for /health.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   fmt.Sprintf("feed_%d", h.seq.Add(1)),
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- c

	go c.writePump(h)
	go c.readPump(h)
}

// readPump drains the connection so close frames and pongs are
// processed. Inbound payloads are discarded.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Feed read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

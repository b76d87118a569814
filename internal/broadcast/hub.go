package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/satoshigo/hunt/pkg/streaming"
)

const (
	clientSendSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// client is one subscriber connected to the hub.
type client struct {
	id     uint64
	conn   *ws.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	gameID atomic.Value // string; empty means every game
}

func (c *client) wants(gameID string) bool {
	sub, _ := c.gameID.Load().(string)
	return sub == "" || sub == gameID
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub is the server side of the broadcast feed. Clients connect with an
// optional ?game=<id> filter and may change it later with a subscribe message.
type Hub struct {
	upgrader ws.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: ws.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   h.nextID.Add(1),
		conn: conn,
		send: make(chan []byte, clientSendSize),
		done: make(chan struct{}),
	}
	c.gameID.Store(r.URL.Query().Get("game"))

	if !h.register(c) {
		_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.logger.Debug("Broadcast client connected", "client", c.id, "game", r.URL.Query().Get("game"))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
	_ = c.conn.Close()
}

// readLoop handles subscribe messages and keeps the pong deadline alive.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != streaming.TypeSubscribe {
			continue
		}
		var sub streaming.SubscribePayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &sub); err != nil {
				continue
			}
		}
		c.gameID.Store(sub.GameID)

		ack, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: streaming.TypeSubscribe})
		h.enqueue(c, ack)
	}
}

// writeLoop is the only writer for c.conn.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.logger.Debug("Broadcast write failed", "client", c.id, "error", err)
				c.stop()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
		}
	}
}

// enqueue hands data to a client without blocking; slow clients lose messages.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		h.dropped.Add(1)
	}
}

// Publish sends env to every client subscribed to its game.
func (h *Hub) Publish(_ context.Context, env streaming.Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(env.GameID) {
			h.enqueue(c, data)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	return nil
}

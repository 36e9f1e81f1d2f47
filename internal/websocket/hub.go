package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type MessageType string

const (
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeMove      MessageType = "move"
	MessageTypeStatus    MessageType = "status"
)

type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Hub fans organizer events out to every connected websocket client.
type Hub struct {
	sessionID    string
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func NewHub(logger zerolog.Logger, sessionID string) *Hub {
	return &Hub{
		sessionID:    sessionID,
		logger:       logger.With().Str("component", "events").Logger(),
		pingInterval: 30 * time.Second,
		clients:      make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local status endpoint; any origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Event subscriber connected")

	go h.readPump(c)
	h.writePump(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()

	h.logger.Info().Str("client", c.id).Msg("Event subscriber disconnected")
}

// readPump drains incoming frames so control messages are processed.
func (h *Hub) readPump(c *client) {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Failed to write event")
				c.close()
				return
			}

		case <-ticker.C:
			payload, _ := json.Marshal(map[string]interface{}{
				"timestamp": time.Now().Unix(),
				"status":    "healthy",
			})
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Message{Type: MessageTypeHeartbeat, SessionID: h.sessionID, Payload: payload}); err != nil {
				c.close()
				return
			}
		}
	}
}

// Broadcast sends payload to every subscriber. Slow subscribers whose
// buffer is full miss the message.
func (h *Hub) Broadcast(msgType MessageType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := Message{Type: msgType, SessionID: h.sessionID, Payload: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("client", c.id).Str("type", string(msgType)).Msg("Subscriber too slow, dropping event")
		}
	}
	return nil
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
}

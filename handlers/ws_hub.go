package handlers

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const sendBufferSize = 256

// Connection represents a WebSocket connection and the player it belongs to.
type Connection struct {
	ws          *websocket.Conn
	send        chan []byte
	id          string
	playerID    string
	displayName string
	limiter     *rate.Limiter
	closed      bool
}

// Hub tracks the live connection of every player. A player has at most one;
// a new connection replaces the old one.
type Hub struct {
	mu          sync.Mutex
	connections map[string]*Connection
	log         zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		log:         logger.Component("hub"),
	}
}

// Register makes c the player's connection and returns the one it replaced.
func (h *Hub) Register(c *Connection) *Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.connections[c.playerID]
	h.connections[c.playerID] = c
	if old != nil {
		h.closeLocked(old)
	}
	return old
}

// Unregister removes c and reports whether it was still the player's
// current connection.
func (h *Hub) Unregister(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.connections[c.playerID] == c
	if current {
		delete(h.connections, c.playerID)
	}
	h.closeLocked(c)
	return current
}

func (h *Hub) closeLocked(c *Connection) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Online reports whether a player has a live connection.
func (h *Hub) Online(playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.connections[playerID]
	return ok
}

// SendTo queues an event for one player. It never blocks: if the player's
// buffer is full the message is dropped.
func (h *Hub) SendTo(playerID, event string, payload any) {
	h.send(playerID, models.OutboundEnvelope{Event: event, Data: payload})
}

func (h *Hub) send(playerID string, envelope models.OutboundEnvelope) {
	message, err := json.Marshal(envelope)
	if err != nil {
		h.log.Error().Err(err).Str("event", envelope.Event).Msg("encoding event failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.connections[playerID]
	if !ok {
		return
	}
	h.push(c, message, envelope.Event)
}

// reply sends directly to one connection, whether or not it is current.
func (h *Hub) reply(c *Connection, envelope models.OutboundEnvelope) {
	message, err := json.Marshal(envelope)
	if err != nil {
		h.log.Error().Err(err).Str("event", envelope.Event).Msg("encoding reply failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(c, message, envelope.Event)
}

// push must be called with h.mu held.
func (h *Hub) push(c *Connection, message []byte, event string) {
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		h.log.Warn().Str("playerId", c.playerID).Str("event", event).Msg("send buffer full, dropping message")
	}
}

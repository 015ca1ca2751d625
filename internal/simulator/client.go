package simulator

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openlot/bidsync/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// client is a middleman between one websocket connection and the server.
type client struct {
	server *Server

	conn *websocket.Conn

	// Buffered channel of outbound envelopes.
	send chan domain.Envelope

	user    domain.UserRef
	limiter *rate.Limiter

	// mu guards rooms and closed. Broadcasts snapshot their targets outside
	// the server lock, so a target may already be unregistering by the time
	// trySend runs; closed keeps that window from sending on a closed
	// channel.
	mu     sync.Mutex
	rooms  map[string]bool
	closed bool

	logger *slog.Logger
}

func newClient(server *Server, conn *websocket.Conn, user domain.UserRef, limiter *rate.Limiter, logger *slog.Logger) *client {
	return &client{
		server:  server,
		conn:    conn,
		send:    make(chan domain.Envelope, 256),
		user:    user,
		limiter: limiter,
		rooms:   make(map[string]bool),
		logger:  logger.With("user_id", user.ID),
	}
}

// closeSend closes the send channel exactly once and marks the client dead
// for late broadcasts.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// readPump pumps messages from the websocket connection to the server.
func (c *client) readPump() {
	defer func() {
		c.server.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("failed to unmarshal client message", "error", err)
			continue
		}
		c.server.handleMessage(c, env)
	}
}

// writePump pumps envelopes from the server to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues an envelope without blocking; full buffers drop the frame
// and a client already past closeSend drops it silently.
func (c *client) trySend(env domain.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		c.logger.Warn("client send buffer full, dropping frame", "event", env.Event)
	}
}

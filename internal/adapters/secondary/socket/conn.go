package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds connection tuning.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://api.example.com/ws.
	URL string

	DialTimeout time.Duration

	// ReconnectMin is the first reconnect delay; it doubles per failed
	// attempt up to ReconnectMax. Attempts are unlimited.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns production defaults for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		DialTimeout:    10 * time.Second,
		ReconnectMin:   1 * time.Second,
		ReconnectMax:   5 * time.Second,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Conn is the process's one persistent, bidirectional, message-based
// connection. It is explicitly constructed and injected into every
// subscription rather than held in a package-level singleton, with a
// create/dispose lifecycle: Close tears it down for good and a later
// session builds a fresh instance.
//
// Transport loss flips the state to disconnected and starts an unlimited
// reconnect loop with capped exponential delay; a server-initiated close
// reconnects immediately instead of waiting out the backoff. Connection
// errors surface through IsConnected and the local lifecycle events, not
// as panics inside handlers.
type Conn struct {
	cfg     Config
	session ports.SessionProvider
	logger  *slog.Logger

	mu           sync.Mutex
	ws           *websocket.Conn
	state        State
	closed       bool
	reconnecting bool

	// writeMu serializes frame writes; Emit and the ping loop share the
	// socket.
	writeMu sync.Mutex

	lmu       sync.RWMutex
	nextID    ports.ListenerID
	listeners map[string]map[ports.ListenerID]ports.HandlerFunc
}

var _ ports.EventConn = (*Conn)(nil)

// New builds a disconnected Conn.
func New(cfg Config, session ports.SessionProvider, logger *slog.Logger) *Conn {
	return &Conn{
		cfg:       cfg,
		session:   session,
		logger:    logger.With("component", "socket"),
		listeners: make(map[string]map[ports.ListenerID]ports.HandlerFunc),
	}
}

// Connect establishes the connection, authenticating the handshake with the
// session's bearer token. No-op when already connected or connecting.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrConnectionGone
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.dispatch(domain.EventConnectError, mustMarshal(domain.DisconnectPayload{Reason: err.Error()}))
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}
	return nil
}

// Close tears the connection down permanently, as on sign-out.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.state = StateDisconnected
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = ws.Close()
	}
	return nil
}

// IsConnected reports whether the socket is currently open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Emit publishes a named event. There is deliberately no offline queue:
// when the socket is not open the payload is dropped and the caller gets
// ErrNotConnected.
func (c *Conn) Emit(event string, payload any) error {
	c.mu.Lock()
	ws := c.ws
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || ws == nil {
		return apperrors.ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	env := domain.Envelope{Event: event, Data: data}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// On registers a handler for a named event.
func (c *Conn) On(event string, fn ports.HandlerFunc) ports.ListenerID {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	if c.listeners[event] == nil {
		c.listeners[event] = make(map[ports.ListenerID]ports.HandlerFunc)
	}
	c.listeners[event][c.nextID] = fn
	return c.nextID
}

// Off detaches a handler. Unknown ids are a no-op.
func (c *Conn) Off(event string, id ports.ListenerID) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	if handlers, ok := c.listeners[event]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(c.listeners, event)
		}
	}
}

func (c *Conn) dial(ctx context.Context) error {
	header := http.Header{}
	if token := c.session.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial (status %d): %w", resp.StatusCode, err)
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return apperrors.ErrConnectionGone
	}
	c.ws = ws
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(ws)
	go c.pingLoop(ws)

	c.logger.Info("connected", "url", c.cfg.URL)
	c.dispatch(domain.EventConnect, nil)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	var reason error
	defer func() { c.readClosed(ws, reason) }()

	ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			reason = err
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("dropped malformed frame", "error", err)
			continue
		}
		if env.Event == "" {
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

// readClosed runs when a read loop exits. It marks the connection lost and,
// unless Close was called, kicks off reconnection. A close frame from the
// server skips the first backoff delay so we never sit disconnected waiting
// for a timer the server already told us to restart.
func (c *Conn) readClosed(ws *websocket.Conn, reason error) {
	c.mu.Lock()
	if c.ws != ws {
		// A stale loop from an older socket; the current one is fine.
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	closed := c.closed
	c.mu.Unlock()
	_ = ws.Close()

	if closed {
		return
	}

	msg := "transport closed"
	if reason != nil {
		msg = reason.Error()
	}
	c.logger.Warn("connection lost", "reason", msg)
	c.dispatch(domain.EventDisconnect, mustMarshal(domain.DisconnectPayload{Reason: msg}))

	serverClose := websocket.IsCloseError(reason,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseServiceRestart)
	go c.reconnectLoop(serverClose)
}

// reconnectLoop retries the dial forever with exponential delay growth
// capped at ReconnectMax, until Close or success.
func (c *Conn) reconnectLoop(immediate bool) {
	c.mu.Lock()
	if c.reconnecting || c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	delay := c.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		if attempt > 1 || !immediate {
			time.Sleep(delay)
			delay *= 2
			if delay > c.cfg.ReconnectMax {
				delay = c.cfg.ReconnectMax
			}
		}

		c.mu.Lock()
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("reconnected", "attempts", attempt)
			return
		}

		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

func (c *Conn) pingLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.ws == ws
		c.mu.Unlock()
		if !current {
			return
		}

		c.writeMu.Lock()
		_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
		err := ws.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// dispatch runs every handler for an event sequentially, in registration
// arrival order relative to other events: all handlers run to completion
// before the next inbound message is processed. A panicking handler is
// recovered and logged; letting it escape would kill the read loop and
// silently drop every other subscription on the shared connection.
func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.lmu.RLock()
	handlers := make([]ports.HandlerFunc, 0, len(c.listeners[event]))
	for _, fn := range c.listeners[event] {
		handlers = append(handlers, fn)
	}
	c.lmu.RUnlock()

	for _, fn := range handlers {
		c.safeInvoke(event, fn, data)
	}
}

func (c *Conn) safeInvoke(event string, fn ports.HandlerFunc, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	fn(data)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openlot/bidsync/internal/core/domain"
	"github.com/openlot/bidsync/internal/core/ports"
)

// listenerRef tracks one handler registered through a subscription so Blur
// can detach it.
type listenerRef struct {
	event string
	id    ports.ListenerID
}

// RoomSubscription scopes event traffic to one logical room for the visible
// lifetime of a screen. Focus joins, Blur leaves; both are idempotent:
// a duplicate Focus issues no second join message and a Blur without a prior
// join issues none at all. Blurring one subscription never disturbs other
// subscriptions multiplexed on the same connection.
type RoomSubscription struct {
	conn    ports.EventConn
	session ports.SessionProvider
	kind    domain.RoomKind
	scopeID string
	viewAll bool
	logger  *slog.Logger

	mu        sync.Mutex
	joined    bool
	joining   bool
	listeners []listenerRef
}

// RoomOption customizes a subscription.
type RoomOption func(*RoomSubscription)

// WithViewAll marks the subscription as an operator session spanning every
// auction in its room kind.
func WithViewAll() RoomOption {
	return func(s *RoomSubscription) { s.viewAll = true }
}

// NewRoomSubscription builds an unjoined subscription for (kind, scopeID).
func NewRoomSubscription(conn ports.EventConn, session ports.SessionProvider, kind domain.RoomKind, scopeID string, logger *slog.Logger, opts ...RoomOption) *RoomSubscription {
	s := &RoomSubscription{
		conn:    conn,
		session: session,
		kind:    kind,
		scopeID: scopeID,
		logger:  logger.With("room", domain.RoomKey(kind, scopeID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Focus joins the room. A join with no scope id is a no-op, as is a join
// while already joined or in flight. When the connection is not yet open,
// Focus dials first so the join is never lost silently. The dial can block
// for its full timeout, so it runs outside the mutex; Joined and Blur stay
// responsive while it is in flight.
func (s *RoomSubscription) Focus(ctx context.Context) error {
	s.mu.Lock()
	if s.joined || s.joining || s.scopeID == "" {
		s.mu.Unlock()
		return nil
	}
	s.joining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
	}()

	if !s.conn.IsConnected() {
		if err := s.conn.Connect(ctx); err != nil {
			return fmt.Errorf("join %s: %w", domain.RoomKey(s.kind, s.scopeID), err)
		}
	}

	user, _ := s.session.User()
	payload := domain.JoinRoomPayload{
		UserID:   user.ID,
		UserRole: user.Role,
		Scope:    domain.RoomKey(s.kind, s.scopeID),
		ViewAll:  s.viewAll,
	}
	if err := s.conn.Emit(domain.EventJoinRoom, payload); err != nil {
		return fmt.Errorf("join %s: %w", domain.RoomKey(s.kind, s.scopeID), err)
	}

	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
	s.logger.Debug("room joined")
	return nil
}

// Blur leaves the room and detaches every handler registered through this
// subscription. Calling it without a prior join detaches handlers but sends
// nothing.
func (s *RoomSubscription) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range s.listeners {
		s.conn.Off(ref.event, ref.id)
	}
	s.listeners = nil

	if !s.joined {
		return
	}
	s.joined = false

	payload := domain.LeaveRoomPayload{ScopeID: s.scopeID}
	if err := s.conn.Emit(domain.EventLeaveRoom, payload); err != nil {
		// Expected when the transport dropped before the leave; membership
		// died with the connection.
		s.logger.Debug("leave not sent", "error", err)
	}
	s.logger.Debug("room left")
}

// Listen registers a handler whose lifetime is bound to the subscription.
func (s *RoomSubscription) Listen(event string, fn ports.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.conn.On(event, fn)
	s.listeners = append(s.listeners, listenerRef{event: event, id: id})
}

// Joined reports whether the room is currently joined.
func (s *RoomSubscription) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// ScopeID returns the subscription's scope id.
func (s *RoomSubscription) ScopeID() string {
	return s.scopeID
}

package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

// NotificationService reconciles the per-user notification list and unread
// counter. Pushed notifications are de-duplicated by id and kept newest
// first; marking one read is applied optimistically and the unread counter
// never drops below zero.
type NotificationService struct {
	conn    ports.EventConn
	session ports.SessionProvider
	logger  *slog.Logger

	mu       sync.Mutex
	room     *RoomSubscription
	list     []domain.Notification
	seen     map[string]bool
	unread   int
	focused  bool
	onChange func(int)
}

// NewNotificationService builds an idle service for the authenticated user.
func NewNotificationService(conn ports.EventConn, session ports.SessionProvider, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		conn:    conn,
		session: session,
		logger:  logger.With("component", "notifications"),
		seen:    make(map[string]bool),
	}
}

// OnChange registers a callback invoked with the unread count after every
// change; the notifications badge hangs off it. Set it before Focus.
func (s *NotificationService) OnChange(fn func(unread int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Focus joins the user's notification room and attaches handlers. Requires
// an authenticated user: the room is scoped by user id.
func (s *NotificationService) Focus(ctx context.Context) error {
	user, ok := s.session.User()
	if !ok {
		return apperrors.NewValidationError(apperrors.ErrNoActiveUser, "Sign in to see notifications.")
	}

	s.mu.Lock()
	if s.focused {
		s.mu.Unlock()
		return nil
	}
	s.focused = true
	if s.room == nil {
		s.room = NewRoomSubscription(s.conn, s.session, domain.RoomNotification, user.ID, s.logger)
	}
	room := s.room
	s.mu.Unlock()

	if err := room.Focus(ctx); err != nil {
		s.mu.Lock()
		s.focused = false
		s.mu.Unlock()
		return err
	}

	room.Listen(domain.EventNotification, s.handlePush)
	room.Listen(domain.EventUnreadCount, s.handleUnreadCount)
	return nil
}

// Blur leaves the room and detaches handlers. The list and counter stay
// with the session.
func (s *NotificationService) Blur() {
	s.mu.Lock()
	room := s.room
	s.focused = false
	s.mu.Unlock()

	if room != nil {
		room.Blur()
	}
}

// MarkRead optimistically flips a notification to read and decrements the
// unread counter, floored at zero. Marking an unknown or already-read id
// changes nothing.
func (s *NotificationService) MarkRead(id string) {
	s.mu.Lock()
	var changed bool
	for i := range s.list {
		if s.list[i].Key() == id && !s.list[i].Read {
			s.list[i].Read = true
			if s.unread > 0 {
				s.unread--
			}
			changed = true
			break
		}
	}
	fn := s.onChange
	unread := s.unread
	s.mu.Unlock()

	if changed && fn != nil {
		fn(unread)
	}
}

// Unread returns the current unread count.
func (s *NotificationService) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// List returns a copy of the notification list, newest first.
func (s *NotificationService) List() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.list))
	copy(out, s.list)
	return out
}

func (s *NotificationService) handlePush(raw json.RawMessage) {
	incoming, err := domain.NormalizeNotifications(raw)
	if err != nil {
		s.logger.Warn("dropped malformed notification", "error", err)
		return
	}

	s.mu.Lock()
	var fresh []domain.Notification
	for _, n := range incoming {
		key := n.Key()
		if key == "" || s.seen[key] {
			continue
		}
		s.seen[key] = true
		fresh = append(fresh, n)
		if !n.Read {
			s.unread++
		}
	}
	if len(fresh) > 0 {
		s.list = append(fresh, s.list...)
	}
	fn := s.onChange
	unread := s.unread
	s.mu.Unlock()

	if len(fresh) > 0 && fn != nil {
		fn(unread)
	}
}

func (s *NotificationService) handleUnreadCount(raw json.RawMessage) {
	count, err := domain.NormalizeUnreadCount(raw)
	if err != nil {
		s.logger.Warn("dropped malformed unread count", "error", err)
		return
	}
	if count < 0 {
		count = 0
	}

	s.mu.Lock()
	s.unread = count
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(count)
	}
}

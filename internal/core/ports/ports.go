package ports

import (
	"context"
	"encoding/json"

	"github.com/openlot/bidsync/internal/core/domain"
)

// HandlerFunc receives the raw payload of a named event. Handlers run
// sequentially on the connection's read loop and must not block.
type HandlerFunc func(data json.RawMessage)

// ListenerID identifies a registered handler so it can be detached. Go
// closures are not comparable, so detachment is by token rather than by
// handler value. Zero is never a valid id.
type ListenerID uint64

// EventConn is the port for the shared persistent connection. One instance
// is constructed at application level and injected into every subscription;
// multiple subscriptions multiplex over it without interference.
type EventConn interface {
	// Connect establishes the connection. It is a no-op when already
	// connected or connecting.
	Connect(ctx context.Context) error

	// Close tears the connection down for good, as on sign-out. A closed
	// connection does not reconnect.
	Close() error

	// IsConnected reports whether the socket is currently open.
	IsConnected() bool

	// Emit publishes a named event, fire-and-forget. There is no offline
	// queue: when the socket is not open the payload is dropped and
	// ErrNotConnected returned.
	Emit(event string, payload any) error

	// On registers a handler for a named event and returns its id.
	On(event string, fn HandlerFunc) ListenerID

	// Off detaches a previously registered handler. Detaching an unknown
	// id is a no-op.
	Off(event string, id ListenerID)
}

// SessionProvider supplies the bearer token used at handshake time and the
// authenticated actor, if any. It is the only coupling to the surrounding
// app's auth machinery.
type SessionProvider interface {
	Token() string
	User() (domain.UserRef, bool)
}

// ListingFetcher is the port for the one-shot REST snapshot consumed before
// the event stream takes over.
type ListingFetcher interface {
	FetchAuctions(ctx context.Context) ([]domain.AuctionView, error)
}

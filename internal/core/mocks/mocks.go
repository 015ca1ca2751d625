package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

// MockSessionProvider is a mock implementation of ports.SessionProvider.
type MockSessionProvider struct {
	mock.Mock
}

func NewMockSessionProvider() *MockSessionProvider {
	return &MockSessionProvider{}
}

func (m *MockSessionProvider) Token() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSessionProvider) User() (domain.UserRef, bool) {
	args := m.Called()
	return args.Get(0).(domain.UserRef), args.Bool(1)
}

// MockListingFetcher is a mock implementation of ports.ListingFetcher.
type MockListingFetcher struct {
	mock.Mock
}

func NewMockListingFetcher() *MockListingFetcher {
	return &MockListingFetcher{}
}

func (m *MockListingFetcher) FetchAuctions(ctx context.Context) ([]domain.AuctionView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuctionView), args.Error(1)
}

// EmittedEvent records one outbound Emit observed by the FakeConn.
type EmittedEvent struct {
	Event   string
	Payload any
}

// FakeConn is an in-memory ports.EventConn for tests. It records outbound
// traffic and lets tests deliver inbound events synchronously through
// Dispatch, mirroring the single-threaded arrival-order guarantee of the
// real connection.
type FakeConn struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	nextID    ports.ListenerID
	listeners map[string]map[ports.ListenerID]ports.HandlerFunc

	ConnectCalls int
	Emits        []EmittedEvent
}

var _ ports.EventConn = (*FakeConn)(nil)

func NewFakeConn() *FakeConn {
	return &FakeConn{listeners: make(map[string]map[ports.ListenerID]ports.HandlerFunc)}
}

func (f *FakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return apperrors.ErrConnectionGone
	}
	f.ConnectCalls++
	f.connected = true
	return nil
}

func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

// SetConnected flips the connection flag without counting as a dial.
func (f *FakeConn) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *FakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeConn) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return apperrors.ErrNotConnected
	}
	f.Emits = append(f.Emits, EmittedEvent{Event: event, Payload: payload})
	return nil
}

func (f *FakeConn) On(event string, fn ports.HandlerFunc) ports.ListenerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if f.listeners[event] == nil {
		f.listeners[event] = make(map[ports.ListenerID]ports.HandlerFunc)
	}
	f.listeners[event][f.nextID] = fn
	return f.nextID
}

func (f *FakeConn) Off(event string, id ports.ListenerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners[event], id)
}

// Dispatch delivers an inbound event to every registered handler. The
// payload is marshalled to JSON first, the same shape handlers see in
// production.
func (f *FakeConn) Dispatch(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.DispatchRaw(event, raw)
}

// DispatchRaw delivers a pre-encoded inbound payload.
func (f *FakeConn) DispatchRaw(event string, raw json.RawMessage) {
	f.mu.Lock()
	handlers := make([]ports.HandlerFunc, 0, len(f.listeners[event]))
	for _, fn := range f.listeners[event] {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(raw)
	}
}

// EmittedOf returns the recorded emits for one event name.
func (f *FakeConn) EmittedOf(event string) []EmittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EmittedEvent
	for _, e := range f.Emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// ListenerCount reports how many handlers are attached for an event.
func (f *FakeConn) ListenerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

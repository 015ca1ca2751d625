package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlot/bidsync/internal/core/domain"
)

// TickFunc receives the freshly derived countdown for a registered scope.
type TickFunc func(domain.CountdownState)

// Registration holds the authoritative timestamps a countdown is derived
// from. The formatted string is display-only; the timestamps stay the source
// of truth and a passed boundary never flips status from here.
type Registration struct {
	Status    domain.AuctionStatus
	StartTime *time.Time
	EndTime   *time.Time
}

type countdownSub struct {
	reg Registration
	fn  TickFunc
}

// CountdownService is the single ticking clock every countdown subscriber
// registers against. One fixed 1-second tick recomputes all registrations,
// independent of bid traffic. Built on clockwork.Clock so tests drive a
// fake clock.
type CountdownService struct {
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	subs    map[string]*countdownSub
	running bool
	stop    chan struct{}
}

// NewCountdownService builds a stopped service ticking once per second.
func NewCountdownService(clock clockwork.Clock, logger *slog.Logger) *CountdownService {
	return &CountdownService{
		clock:    clock,
		interval: time.Second,
		logger:   logger.With("component", "countdown"),
		subs:     make(map[string]*countdownSub),
	}
}

// Start launches the tick loop. Calling Start on a running service is a
// no-op.
func (c *CountdownService) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	go c.run(c.stop)
}

// Stop halts the tick loop. Registrations survive a Stop/Start cycle.
func (c *CountdownService) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
}

func (c *CountdownService) run(stop chan struct{}) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.tick(c.clock.Now())
		}
	}
}

// Register adds or replaces the countdown registration for a scope id.
// The callback fires on the next tick.
func (c *CountdownService) Register(scopeID string, reg Registration, fn TickFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[scopeID] = &countdownSub{reg: reg, fn: fn}
}

// Update replaces the timestamps and status for an existing registration,
// keeping its callback. Unknown scopes are ignored.
func (c *CountdownService) Update(scopeID string, reg Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[scopeID]; ok {
		sub.reg = reg
	}
}

// Registered reports whether a scope currently has a registration.
func (c *CountdownService) Registered(scopeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[scopeID]
	return ok
}

// Deregister removes exactly one scope's registration; other subscribers
// keep ticking.
func (c *CountdownService) Deregister(scopeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, scopeID)
}

func (c *CountdownService) tick(now time.Time) {
	c.mu.Lock()
	type entry struct {
		reg Registration
		fn  TickFunc
	}
	entries := make([]entry, 0, len(c.subs))
	for _, sub := range c.subs {
		entries = append(entries, entry{reg: sub.reg, fn: sub.fn})
	}
	c.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may re-register or
	// deregister from within its own tick.
	for _, e := range entries {
		state := domain.DeriveCountdown(e.reg.Status, e.reg.StartTime, e.reg.EndTime, now)
		e.fn(state)
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

// SyncState is the per-auction synchronization state.
type SyncState int

const (
	// StateIdle - before the room is joined.
	StateIdle SyncState = iota
	// StateAwaitingSnapshot - joined, snapshot requested, nothing applied yet.
	StateAwaitingSnapshot
	// StateSynced - a snapshot or at least one increment has been applied.
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateAwaitingSnapshot:
		return "awaiting_snapshot"
	case StateSynced:
		return "synced"
	default:
		return "idle"
	}
}

// LedgerConfig tunes the snapshot request and its timeout window.
type LedgerConfig struct {
	SnapshotSort    string
	SnapshotLimit   int
	SnapshotTimeout time.Duration
}

// DefaultLedgerConfig returns the production defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		SnapshotSort:    "createdAt:desc",
		SnapshotLimit:   50,
		SnapshotTimeout: 10 * time.Second,
	}
}

// LedgerService owns the bid ledger for a single auction screen. It merges
// the authoritative snapshot received on join with the live increment stream
// into an ordered, de-duplicated ledger whose current bid never decreases.
// The ledger is exclusively owned by the screen holding the service; nothing
// is shared across screens except the connection itself.
type LedgerService struct {
	conn      ports.EventConn
	session   ports.SessionProvider
	auctionID string
	room      *RoomSubscription
	clock     clockwork.Clock
	cfg       LedgerConfig
	logger    *slog.Logger

	mu       sync.Mutex
	ledger   *domain.BidLedger
	state    SyncState
	focused  bool
	timeout  clockwork.Timer
	onChange func(domain.BidLedger)
	onError  func(error)
}

// NewLedgerService builds an idle service for one auction.
func NewLedgerService(conn ports.EventConn, session ports.SessionProvider, auctionID string, clock clockwork.Clock, cfg LedgerConfig, logger *slog.Logger) *LedgerService {
	logger = logger.With("component", "ledger", "auction_id", auctionID)
	return &LedgerService{
		conn:      conn,
		session:   session,
		auctionID: auctionID,
		room:      NewRoomSubscription(conn, session, domain.RoomAuction, auctionID, logger),
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		ledger:    domain.NewBidLedger(),
		state:     StateIdle,
	}
}

// OnChange registers a callback invoked after every ledger mutation.
// Set it before Focus.
func (s *LedgerService) OnChange(fn func(domain.BidLedger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// OnError registers a callback for asynchronous failures, such as a snapshot
// request that times out.
func (s *LedgerService) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Focus joins the auction room, attaches the stream handlers and requests
// the authoritative snapshot. Safe to call repeatedly.
func (s *LedgerService) Focus(ctx context.Context) error {
	s.mu.Lock()
	if s.focused {
		s.mu.Unlock()
		return nil
	}
	s.focused = true
	s.mu.Unlock()

	if err := s.room.Focus(ctx); err != nil {
		s.mu.Lock()
		s.focused = false
		s.mu.Unlock()
		return err
	}

	// Handlers attach before the snapshot request so an increment racing
	// ahead of the snapshot response is not lost.
	s.room.Listen(domain.EventBidsSnapshot, s.handleSnapshot)
	s.room.Listen(domain.EventNewBid, s.handleIncrement)

	return s.RequestSnapshot()
}

// RequestSnapshot (re-)requests the bid snapshot. Exposed for the retry
// affordance after a timeout.
func (s *LedgerService) RequestSnapshot() error {
	payload := domain.GetBidsPayload{
		AuctionID: s.auctionID,
		Sort:      s.cfg.SnapshotSort,
		Limit:     s.cfg.SnapshotLimit,
	}
	if err := s.conn.Emit(domain.EventGetBids, payload); err != nil {
		return fmt.Errorf("request snapshot for auction %s: %w", s.auctionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateAwaitingSnapshot
	}
	s.stopTimeoutLocked()
	s.timeout = s.clock.AfterFunc(s.cfg.SnapshotTimeout, s.snapshotTimedOut)
	return nil
}

// Blur leaves the room, detaches handlers and clears the pending snapshot
// timer. The accumulated ledger stays with the screen.
func (s *LedgerService) Blur() {
	s.room.Blur()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeoutLocked()
	s.focused = false
	s.state = StateIdle
}

// Ledger returns a copy of the current ledger state.
func (s *LedgerService) Ledger() domain.BidLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.BidLedger{CurrentBid: s.ledger.CurrentBid}
	out.Bids = append(out.Bids, s.ledger.Bids...)
	return out
}

// State returns the synchronization state.
func (s *LedgerService) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubmitBid validates and submits a bid. Every rejection is a local,
// user-facing validation failure produced before any network call:
// a non-positive amount, an amount at or below the current bid, a closed
// connection, or a missing authenticated user. On success the ledger is NOT
// updated optimistically; it waits for the server's own increment event so
// the ledger stays server-derived.
func (s *LedgerService) SubmitBid(amount float64) error {
	if amount <= 0 {
		return apperrors.NewValidationError(apperrors.ErrBidAmountMissing, "Enter a bid amount.")
	}

	s.mu.Lock()
	current := s.ledger.CurrentBid
	s.mu.Unlock()
	if amount <= current {
		return apperrors.NewValidationError(apperrors.ErrBidTooLow,
			fmt.Sprintf("Your bid must be greater than the current bid of %.2f.", current))
	}

	if !s.conn.IsConnected() {
		return apperrors.NewValidationError(apperrors.ErrNotConnected, "You are offline. Reconnecting...")
	}

	user, ok := s.session.User()
	if !ok {
		return apperrors.NewValidationError(apperrors.ErrNoActiveUser, "Sign in to place a bid.")
	}

	payload := domain.PlaceBidPayload{
		AuctionID:   s.auctionID,
		Amount:      amount,
		BidderID:    user.ID,
		BidderName:  user.Name,
		BidderEmail: user.Email,
	}
	if err := s.conn.Emit(domain.EventPlaceBid, payload); err != nil {
		return fmt.Errorf("submit bid on auction %s: %w", s.auctionID, err)
	}
	s.logger.Info("bid submitted", "amount", amount)
	return nil
}

func (s *LedgerService) handleSnapshot(raw json.RawMessage) {
	if id := domain.ProbeAuctionID(raw); id != "" && id != s.auctionID {
		return
	}

	bids, err := domain.NormalizeBids(raw)
	if err != nil {
		s.logger.Warn("dropped malformed snapshot", "error", err)
		return
	}

	s.mu.Lock()
	s.stopTimeoutLocked()
	s.ledger.ApplySnapshot(bids)
	s.state = StateSynced
	fn := s.onChange
	snapshot := s.copyLedgerLocked()
	s.mu.Unlock()

	s.logger.Debug("snapshot applied", "bids", len(bids), "current_bid", snapshot.CurrentBid)
	if fn != nil {
		fn(snapshot)
	}
}

func (s *LedgerService) handleIncrement(raw json.RawMessage) {
	candidates, err := domain.NormalizeBids(raw)
	if err != nil {
		s.logger.Warn("dropped malformed increment", "error", err)
		return
	}

	// Each subscription filters the shared stream to its own scope.
	scoped := candidates[:0]
	for _, b := range candidates {
		if b.AuctionID == "" || b.AuctionID == s.auctionID {
			scoped = append(scoped, b)
		}
	}
	if len(scoped) == 0 {
		return
	}

	s.mu.Lock()
	s.stopTimeoutLocked()
	added := s.ledger.ApplyIncrement(scoped)
	s.state = StateSynced
	fn := s.onChange
	snapshot := s.copyLedgerLocked()
	s.mu.Unlock()

	s.logger.Debug("increment applied", "candidates", len(scoped), "added", added, "current_bid", snapshot.CurrentBid)
	if fn != nil {
		fn(snapshot)
	}
}

func (s *LedgerService) snapshotTimedOut() {
	s.mu.Lock()
	if s.state != StateAwaitingSnapshot {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	fn := s.onError
	s.mu.Unlock()

	s.logger.Warn("bid snapshot request timed out")
	if fn != nil {
		fn(apperrors.NewTerminalError(apperrors.ErrSnapshotTimeout, "Could not load bids. Tap to retry."))
	}
}

func (s *LedgerService) copyLedgerLocked() domain.BidLedger {
	out := domain.BidLedger{CurrentBid: s.ledger.CurrentBid}
	out.Bids = append(out.Bids, s.ledger.Bids...)
	return out
}

func (s *LedgerService) stopTimeoutLocked() {
	if s.timeout != nil {
		s.timeout.Stop()
		s.timeout = nil
	}
}

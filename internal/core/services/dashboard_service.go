package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

// dashboardScope is the operator session's room scope: one auction-kind
// subscription spanning every auction.
const dashboardScope = "all"

// DashboardService is the multi-auction aggregator behind the operator view.
// It ingests a heterogeneous stream of partial and complete auction-update
// events across many auctions at once, inserting previously-unseen auctions
// and merging fields with the precedence defined in domain.MergeAuctionView.
// Views are never deleted within a session; ended auctions transition status
// instead of disappearing.
type DashboardService struct {
	conn      ports.EventConn
	session   ports.SessionProvider
	listings  ports.ListingFetcher
	countdown *CountdownService
	room      *RoomSubscription
	logger    *slog.Logger

	mu      sync.Mutex
	views   map[string]*domain.AuctionView
	focused bool
}

// NewDashboardService builds an idle aggregator. listings and countdown may
// be nil when the caller wires neither the REST snapshot nor countdowns.
func NewDashboardService(conn ports.EventConn, session ports.SessionProvider, listings ports.ListingFetcher, countdown *CountdownService, logger *slog.Logger) *DashboardService {
	logger = logger.With("component", "dashboard")
	return &DashboardService{
		conn:      conn,
		session:   session,
		listings:  listings,
		countdown: countdown,
		room:      NewRoomSubscription(conn, session, domain.RoomAuction, dashboardScope, logger, WithViewAll()),
		logger:    logger,
		views:     make(map[string]*domain.AuctionView),
	}
}

// Focus fetches the initial REST snapshot, joins the all-auctions room and
// attaches the stream handlers.
func (s *DashboardService) Focus(ctx context.Context) error {
	s.mu.Lock()
	if s.focused {
		s.mu.Unlock()
		return nil
	}
	s.focused = true
	s.mu.Unlock()

	if s.listings != nil {
		views, err := s.listings.FetchAuctions(ctx)
		if err != nil {
			s.mu.Lock()
			s.focused = false
			s.mu.Unlock()
			return fmt.Errorf("initial auction snapshot: %w", err)
		}
		s.loadViews(views)
	}

	if err := s.room.Focus(ctx); err != nil {
		s.mu.Lock()
		s.focused = false
		s.mu.Unlock()
		return err
	}

	s.room.Listen(domain.EventAuctionList, s.handleList)
	s.room.Listen(domain.EventAuctionUpdate, s.handleUpdate)
	s.room.Listen(domain.EventAuctionCompleted, s.handleCompleted)
	s.room.Listen(domain.EventStatusChanged, s.handleStatusChanged)
	return nil
}

// Blur leaves the room, detaches handlers and deregisters this session's
// countdowns.
func (s *DashboardService) Blur() {
	s.room.Blur()

	s.mu.Lock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	s.focused = false
	s.mu.Unlock()

	if s.countdown != nil {
		for _, id := range ids {
			s.countdown.Deregister(id)
		}
	}
}

// loadViews seeds the view map from an already-assembled snapshot, such as
// the initial REST fetch. Later stream events refine these entries in place.
func (s *DashboardService) loadViews(views []domain.AuctionView) {
	s.mu.Lock()
	for i := range views {
		if views[i].AuctionID == "" {
			continue
		}
		v := views[i]
		s.views[v.AuctionID] = &v
	}
	s.mu.Unlock()

	for _, v := range views {
		if v.AuctionID != "" {
			s.registerCountdown(v)
		}
	}
	s.logger.Info("auction snapshot loaded", "auctions", len(views))
}

// BulkLoad replaces the entire view map from a bulk auction list.
func (s *DashboardService) BulkLoad(updates []domain.AuctionUpdate) {
	fresh := make(map[string]*domain.AuctionView, len(updates))
	for _, u := range updates {
		if u.AuctionID == "" {
			continue
		}
		if u.Status != nil && !domain.AuctionStatus(*u.Status).IsValid() {
			s.logger.Warn("dropped auction with unknown status", "auction_id", u.AuctionID, "status", *u.Status)
			continue
		}
		view := domain.MergeAuctionView(nil, u)
		fresh[u.AuctionID] = &view
	}

	s.mu.Lock()
	var dropped []string
	for id := range s.views {
		if _, ok := fresh[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	s.views = fresh
	s.mu.Unlock()

	if s.countdown != nil {
		for _, id := range dropped {
			s.countdown.Deregister(id)
		}
	}
	for _, view := range fresh {
		s.registerCountdown(*view)
	}
	s.logger.Info("bulk auction list loaded", "auctions", len(fresh), "dropped", len(dropped))
}

// ApplyUpdate merges one partial update. An update without an auction id is
// ignored; an unknown id synthesizes and inserts a complete view, covering
// both genuinely new auctions and restarted ones that had previously ended.
func (s *DashboardService) ApplyUpdate(u domain.AuctionUpdate) error {
	if u.AuctionID == "" {
		return apperrors.ErrMissingAuctionID
	}
	if u.Status != nil && !domain.AuctionStatus(*u.Status).IsValid() {
		return fmt.Errorf("auction %s: %w: %q", u.AuctionID, apperrors.ErrUnknownStatus, *u.Status)
	}

	s.mu.Lock()
	merged := domain.MergeAuctionView(s.views[u.AuctionID], u)
	s.views[u.AuctionID] = &merged
	s.mu.Unlock()

	s.registerCountdown(merged)
	return nil
}

// ApplyCompletion forces a live auction to pending. The transition is
// terminal and idempotent: a second application leaves the status at
// pending. Auctions in any other state are untouched.
func (s *DashboardService) ApplyCompletion(auctionID string) {
	s.mu.Lock()
	view, ok := s.views[auctionID]
	if ok && view.Status == domain.StatusLive {
		view.Status = domain.StatusPending
	}
	var updated domain.AuctionView
	if ok {
		updated = *view
	}
	s.mu.Unlock()

	if ok {
		s.registerCountdown(updated)
		s.logger.Info("auction completed", "auction_id", auctionID, "status", updated.Status)
	}
}

// Views returns a stable-ordered copy of every known auction view.
func (s *DashboardService) Views() []domain.AuctionView {
	s.mu.Lock()
	out := make([]domain.AuctionView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, *v)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AuctionID < out[j].AuctionID })
	return out
}

// View returns one auction's view.
func (s *DashboardService) View(auctionID string) (domain.AuctionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[auctionID]; ok {
		return *v, true
	}
	return domain.AuctionView{}, false
}

func (s *DashboardService) handleList(raw json.RawMessage) {
	updates, err := domain.NormalizeAuctionList(raw)
	if err != nil {
		s.logger.Warn("dropped malformed auction list", "error", err)
		return
	}
	s.BulkLoad(updates)
}

func (s *DashboardService) handleUpdate(raw json.RawMessage) {
	update, err := domain.NormalizeAuctionUpdate(raw)
	if err != nil {
		s.logger.Warn("dropped malformed auction update", "error", err)
		return
	}
	if err := s.ApplyUpdate(update); err != nil {
		if errors.Is(err, apperrors.ErrMissingAuctionID) {
			s.logger.Debug("ignored auction update without id")
			return
		}
		s.logger.Warn("dropped auction update", "error", err)
	}
}

func (s *DashboardService) handleCompleted(raw json.RawMessage) {
	var payload domain.CompletionPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AuctionID == "" {
		s.logger.Warn("dropped malformed completion signal", "error", err)
		return
	}
	s.ApplyCompletion(payload.AuctionID)
}

func (s *DashboardService) handleStatusChanged(raw json.RawMessage) {
	var payload domain.CompletionPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AuctionID == "" {
		s.logger.Warn("dropped malformed status change", "error", err)
		return
	}
	update := domain.AuctionUpdate{AuctionID: payload.AuctionID, Status: &payload.Status}
	if err := s.ApplyUpdate(update); err != nil {
		s.logger.Warn("dropped status change", "error", err)
	}
}

// registerCountdown keeps the central clock in sync with a view's
// authoritative timestamps. Must be called without holding s.mu: the tick
// callback takes it.
func (s *DashboardService) registerCountdown(view domain.AuctionView) {
	if s.countdown == nil {
		return
	}
	id := view.AuctionID
	reg := Registration{Status: view.Status, StartTime: view.StartTime, EndTime: view.EndTime}
	s.countdown.Register(id, reg, func(state domain.CountdownState) {
		s.mu.Lock()
		if v, ok := s.views[id]; ok {
			v.TimeRemaining = state.Value
		}
		s.mu.Unlock()
	})
}

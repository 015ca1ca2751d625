package simulator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openlot/bidsync/internal/auth"
	"github.com/openlot/bidsync/internal/core/domain"
)

// Config holds simulator tuning.
type Config struct {
	JWTSecret      string
	AllowedOrigins []string
	BidsPerSecond  float64
	BidBurst       int
}

// DefaultConfig returns development defaults.
func DefaultConfig(secret string) Config {
	return Config{
		JWTSecret:      secret,
		AllowedOrigins: []string{"*"},
		BidsPerSecond:  2,
		BidBurst:       5,
	}
}

type simAuction struct {
	view    domain.AuctionView
	bids    []domain.Bid
	bidders map[string]bool
}

// Server is a development auction-feed server speaking the same wire
// protocol as the production backend: JWT-authenticated websocket upgrade,
// scope-keyed rooms, bid snapshots and live bid broadcast. It backs local
// development and the socket adapter's integration tests.
type Server struct {
	cfg      Config
	tokens   *auth.TokenManager
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	auctions map[string]*simAuction
	clients  map[*client]bool
	rooms    map[string]map[*client]bool
}

// New builds an empty simulator.
func New(cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		tokens:   auth.NewTokenManager(cfg.JWTSecret),
		logger:   logger.With("component", "simulator"),
		auctions: make(map[string]*simAuction),
		clients:  make(map[*client]bool),
		rooms:    make(map[string]map[*client]bool),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Tokens exposes the token manager so tools can mint handshake tokens.
func (s *Server) Tokens() *auth.TokenManager {
	return s.tokens
}

// Router returns the HTTP surface: the websocket endpoint plus the REST
// listing snapshot the clients fetch once per mount.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/api/auctions/live", s.handleListings)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Seed installs auctions before clients connect.
func (s *Server) Seed(views ...domain.AuctionView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range views {
		s.auctions[v.AuctionID] = &simAuction{view: v, bidders: make(map[string]bool)}
	}
}

// SeedBids installs bid history for one auction, newest first.
func (s *Server) SeedBids(auctionID string, bids ...domain.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.auctions[auctionID]; ok {
		a.bids = append(bids, a.bids...)
		if len(a.bids) > 0 && a.bids[0].Amount > a.view.CurrentBid {
			a.view.CurrentBid = a.bids[0].Amount
		}
	}
}

// PushUpdate merges a partial update into simulator state and broadcasts it
// to the auction's room and the operator room.
func (s *Server) PushUpdate(u domain.AuctionUpdate) {
	s.mu.Lock()
	a, ok := s.auctions[u.AuctionID]
	if !ok {
		a = &simAuction{bidders: make(map[string]bool)}
		s.auctions[u.AuctionID] = a
	}
	var existing *domain.AuctionView
	if ok {
		v := a.view
		existing = &v
	}
	a.view = domain.MergeAuctionView(existing, u)
	s.mu.Unlock()

	s.broadcastToAuction(u.AuctionID, domain.EventAuctionUpdate, u)
}

// Complete marks an auction finished and broadcasts the completion signal.
func (s *Server) Complete(auctionID string) {
	s.mu.Lock()
	if a, ok := s.auctions[auctionID]; ok && a.view.Status == domain.StatusLive {
		a.view.Status = domain.StatusPending
	}
	s.mu.Unlock()

	payload := domain.CompletionPayload{AuctionID: auctionID, Status: string(domain.StatusPending)}
	s.broadcastToAuction(auctionID, domain.EventAuctionCompleted, payload)
}

// PushNotification delivers a notification to one user's room.
func (s *Server) PushNotification(userID string, n domain.Notification) {
	s.broadcast(domain.RoomKey(domain.RoomNotification, userID), domain.EventNotification, n)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	updates := make([]domain.AuctionUpdate, 0, len(s.auctions))
	for _, a := range s.auctions {
		updates = append(updates, viewToUpdate(a.view))
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updates); err != nil {
		s.logger.Error("failed to encode listings", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	user := domain.UserRef{ID: claims.UserID, Name: claims.Name, Email: claims.Email, Role: claims.Role}
	limiter := rate.NewLimiter(rate.Limit(s.cfg.BidsPerSecond), s.cfg.BidBurst)
	c := newClient(s, conn, user, limiter, s.logger)

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()

	s.logger.Info("client connected", "user_id", user.ID)
}

// authenticate accepts the bearer token from the Authorization header or,
// for websocket clients that cannot set headers, a token query parameter.
func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, fmt.Errorf("missing token")
	}
	return s.tokens.ValidateToken(token)
}

func (s *Server) handleMessage(c *client, env domain.Envelope) {
	switch env.Event {
	case domain.EventJoinRoom:
		s.handleJoin(c, env.Data)
	case domain.EventLeaveRoom:
		s.handleLeave(c, env.Data)
	case domain.EventGetBids:
		s.handleGetBids(c, env.Data)
	case domain.EventPlaceBid:
		s.handlePlaceBid(c, env.Data)
	default:
		s.logger.Debug("unknown client event", "event", env.Event)
	}
}

func (s *Server) handleJoin(c *client, data json.RawMessage) {
	var p domain.JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Scope == "" {
		s.logger.Warn("invalid join payload", "error", err)
		return
	}

	s.mu.Lock()
	if s.rooms[p.Scope] == nil {
		s.rooms[p.Scope] = make(map[*client]bool)
	}
	s.rooms[p.Scope][c] = true
	s.mu.Unlock()

	c.mu.Lock()
	c.rooms[p.Scope] = true
	c.mu.Unlock()

	s.logger.Debug("client joined room", "user_id", c.user.ID, "scope", p.Scope)
}

func (s *Server) handleLeave(c *client, data json.RawMessage) {
	var p domain.LeaveRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	// The leave payload carries the bare scope id; match any joined room
	// keyed by it.
	for _, room := range c.joinedRooms() {
		if room == p.ScopeID || strings.HasSuffix(room, ":"+p.ScopeID) {
			s.removeFromRoom(c, room)
		}
	}
}

func (s *Server) handleGetBids(c *client, data json.RawMessage) {
	var p domain.GetBidsPayload
	if err := json.Unmarshal(data, &p); err != nil || p.AuctionID == "" {
		s.logger.Warn("invalid get_bids payload", "error", err)
		return
	}

	s.mu.Lock()
	var bids []domain.Bid
	if a, ok := s.auctions[p.AuctionID]; ok {
		limit := len(a.bids)
		if p.Limit > 0 && p.Limit < limit {
			limit = p.Limit
		}
		bids = append(bids, a.bids[:limit]...)
	}
	s.mu.Unlock()

	payload := struct {
		AuctionID string       `json:"auctionId"`
		Bids      []domain.Bid `json:"bids"`
	}{AuctionID: p.AuctionID, Bids: bids}

	c.trySend(domain.Envelope{Event: domain.EventBidsSnapshot, Data: marshal(payload)})
}

func (s *Server) handlePlaceBid(c *client, data json.RawMessage) {
	if !c.limiter.Allow() {
		c.trySend(errorEnvelope("rate limit exceeded"))
		return
	}

	var p domain.PlaceBidPayload
	if err := json.Unmarshal(data, &p); err != nil || p.AuctionID == "" {
		s.logger.Warn("invalid place_bid payload", "error", err)
		return
	}

	s.mu.Lock()
	a, ok := s.auctions[p.AuctionID]
	if !ok || a.view.Status != domain.StatusLive {
		s.mu.Unlock()
		c.trySend(errorEnvelope("auction is not live"))
		return
	}
	if p.Amount <= a.view.CurrentBid {
		current := a.view.CurrentBid
		s.mu.Unlock()
		c.trySend(errorEnvelope(fmt.Sprintf("bid must exceed current bid of %.2f", current)))
		return
	}

	bid := domain.Bid{
		ID:          uuid.New().String(),
		AuctionID:   p.AuctionID,
		Amount:      p.Amount,
		BidderID:    p.BidderID,
		BidderName:  p.BidderName,
		BidderEmail: p.BidderEmail,
		CreatedAt:   time.Now().UTC(),
	}
	a.bids = append([]domain.Bid{bid}, a.bids...)
	a.view.CurrentBid = p.Amount
	if p.BidderID != "" && !a.bidders[p.BidderID] {
		a.bidders[p.BidderID] = true
	}
	a.view.BidderCount = len(a.bidders)
	bidderCount := a.view.BidderCount
	s.mu.Unlock()

	s.broadcastToAuction(p.AuctionID, domain.EventNewBid, bid)

	amount := p.Amount
	s.broadcastToAuction(p.AuctionID, domain.EventAuctionUpdate, domain.AuctionUpdate{
		AuctionID:   p.AuctionID,
		CurrentBid:  &amount,
		BidderCount: &bidderCount,
	})
}

// broadcastToAuction fans an event out to the auction's own room and to the
// operator room that spans all auctions.
func (s *Server) broadcastToAuction(auctionID, event string, payload any) {
	s.broadcast(domain.RoomKey(domain.RoomAuction, auctionID), event, payload)
	s.broadcast(domain.RoomKey(domain.RoomAuction, "all"), event, payload)
}

func (s *Server) broadcast(room, event string, payload any) {
	env := domain.Envelope{Event: event, Data: marshal(payload)}

	s.mu.Lock()
	targets := make([]*client, 0, len(s.rooms[room]))
	for c := range s.rooms[room] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.trySend(env)
	}
}

func (s *Server) removeFromRoom(c *client, room string) {
	s.mu.Lock()
	if members, ok := s.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
	s.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	for _, room := range c.joinedRooms() {
		s.removeFromRoom(c, room)
	}

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	c.closeSend()
	s.logger.Info("client disconnected", "user_id", c.user.ID)
}

func viewToUpdate(v domain.AuctionView) domain.AuctionUpdate {
	status := string(v.Status)
	u := domain.AuctionUpdate{
		AuctionID: v.AuctionID,
		Status:    &status,
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
	}
	if v.VehicleID != "" {
		id := v.VehicleID
		u.VehicleID = &id
	}
	if v.Title != "" {
		t := v.Title
		u.Title = &t
	}
	if v.Make != "" {
		m := v.Make
		u.Make = &m
	}
	if v.Model != "" {
		m := v.Model
		u.Model = &m
	}
	if v.Year != 0 {
		y := v.Year
		u.Year = &y
	}
	if v.ImageURL != "" {
		i := v.ImageURL
		u.ImageURL = &i
	}
	if v.CurrentBid != 0 {
		b := v.CurrentBid
		u.CurrentBid = &b
	}
	if v.BidderCount != 0 {
		b := v.BidderCount
		u.BidderCount = &b
	}
	return u
}

func marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func errorEnvelope(message string) domain.Envelope {
	return domain.Envelope{
		Event: "error",
		Data:  marshal(map[string]string{"message": message}),
	}
}

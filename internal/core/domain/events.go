package domain

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/openlot/bidsync/internal/core/errors"
)

// Wire event names. One persistent connection multiplexes all of them;
// subscriptions filter to their own scope.
const (
	// Outbound
	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
	EventGetBids   = "get_bids"
	EventPlaceBid  = "place_bid"

	// Inbound
	EventBidsSnapshot     = "bids_snapshot"
	EventNewBid           = "new_bid"
	EventAuctionList      = "auction_list"
	EventAuctionUpdate    = "auction_update"
	EventAuctionCompleted = "auction_completed"
	EventStatusChanged    = "status_changed"
	EventNotification     = "notification"
	EventUnreadCount      = "unread_count"

	// Connection lifecycle, dispatched locally by the connection manager
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is sent when a subscription joins a room.
type JoinRoomPayload struct {
	UserID   string `json:"userId"`
	UserRole string `json:"userRole"`
	Scope    string `json:"scope,omitempty"`
	ViewAll  bool   `json:"viewAll,omitempty"`
}

// LeaveRoomPayload is sent when a subscription leaves a room.
type LeaveRoomPayload struct {
	ScopeID string `json:"scopeId"`
}

// GetBidsPayload requests an authoritative bid snapshot for one auction.
type GetBidsPayload struct {
	AuctionID string `json:"auctionId"`
	Sort      string `json:"sort"`
	Limit     int    `json:"limit"`
}

// PlaceBidPayload submits a bid.
type PlaceBidPayload struct {
	AuctionID   string  `json:"auctionId"`
	Amount      float64 `json:"amount"`
	BidderID    string  `json:"bidderId"`
	BidderName  string  `json:"bidderName"`
	BidderEmail string  `json:"bidderEmail,omitempty"`
}

// CompletionPayload signals that a live auction has ended.
type CompletionPayload struct {
	AuctionID string `json:"auctionId"`
	Status    string `json:"status,omitempty"`
}

// DisconnectPayload carries the transport's reason for a disconnect.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

type bidEnvelope struct {
	Bids []Bid `json:"bids"`
	Data *struct {
		Bids []Bid `json:"bids"`
	} `json:"data"`
}

// NormalizeBids maps every inbound bid payload variant to a flat bid list:
// a single bid object, a bare array, `{bids: [...]}`, or `{data: {bids:
// [...]}}`. The variant handling lives here, at the ingress boundary, so the
// reconciliation engine only ever sees the canonical shape. A payload that
// decodes but contains no bids yields an empty list, not an error.
func NormalizeBids(raw json.RawMessage) ([]Bid, error) {
	trimmed := firstByte(raw)
	if trimmed == 0 {
		return nil, nil
	}

	if trimmed == '[' {
		var bids []Bid
		if err := json.Unmarshal(raw, &bids); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
		}
		return bids, nil
	}

	var env bidEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if len(env.Bids) > 0 {
		return env.Bids, nil
	}
	if env.Data != nil && len(env.Data.Bids) > 0 {
		return env.Data.Bids, nil
	}

	var single Bid
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if single.Key() == "" && single.Amount == 0 {
		return nil, nil
	}
	return []Bid{single}, nil
}

type auctionListEnvelope struct {
	Auctions []AuctionUpdate `json:"auctions"`
	Data     []AuctionUpdate `json:"data"`
}

// NormalizeAuctionUpdate decodes a single partial auction update.
func NormalizeAuctionUpdate(raw json.RawMessage) (AuctionUpdate, error) {
	var update AuctionUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return AuctionUpdate{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	return update, nil
}

// NormalizeAuctionList decodes a bulk auction list: a bare array,
// `{auctions: [...]}`, or `{data: [...]}`.
func NormalizeAuctionList(raw json.RawMessage) ([]AuctionUpdate, error) {
	if firstByte(raw) == '[' {
		var list []AuctionUpdate
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
		}
		return list, nil
	}

	var env auctionListEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if len(env.Auctions) > 0 {
		return env.Auctions, nil
	}
	return env.Data, nil
}

// ProbeAuctionID extracts the auctionId field from an object payload, when
// present. Subscriptions use it to filter shared-connection traffic down to
// their own scope before paying for full normalization.
func ProbeAuctionID(raw json.RawMessage) string {
	var probe struct {
		AuctionID string `json:"auctionId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.AuctionID
}

type notificationEnvelope struct {
	Notifications []Notification `json:"notifications"`
	Data          *struct {
		Notifications []Notification `json:"notifications"`
	} `json:"data"`
}

// NormalizeNotifications maps a notification push payload to a flat list:
// a single object, a bare array, `{notifications: [...]}` or
// `{data: {notifications: [...]}}`.
func NormalizeNotifications(raw json.RawMessage) ([]Notification, error) {
	if firstByte(raw) == '[' {
		var list []Notification
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
		}
		return list, nil
	}

	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if len(env.Notifications) > 0 {
		return env.Notifications, nil
	}
	if env.Data != nil && len(env.Data.Notifications) > 0 {
		return env.Data.Notifications, nil
	}

	var single Notification
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	if single.Key() == "" {
		return nil, nil
	}
	return []Notification{single}, nil
}

// NormalizeUnreadCount decodes the server's unread counter, delivered either
// as a bare number or as `{count: n}`.
func NormalizeUnreadCount(raw json.RawMessage) (int, error) {
	if b := firstByte(raw); b >= '0' && b <= '9' {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
		}
		return n, nil
	}
	var env struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	return env.Count, nil
}

// firstByte returns the first non-whitespace byte of raw, or 0 when empty.
func firstByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

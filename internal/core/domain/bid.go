package domain

import "time"

// Bid is a single immutable bid as delivered by the server. The backend
// addresses bids by a primary id with a secondary fallback, so both are
// carried and Key resolves whichever is present.
type Bid struct {
	ID          string    `json:"_id"`
	AltID       string    `json:"id"`
	AuctionID   string    `json:"auctionId"`
	Amount      float64   `json:"amount"`
	BidderID    string    `json:"bidderId"`
	BidderName  string    `json:"bidderName"`
	BidderEmail string    `json:"bidderEmail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Key returns the identity used for de-duplication: the primary id, falling
// back to the secondary id when the primary is absent.
func (b Bid) Key() string {
	if b.ID != "" {
		return b.ID
	}
	return b.AltID
}

// BidLedger holds the ordered bid history (newest first) and the headline
// current bid for one auction.
//
// Invariants maintained by every mutation:
//   - CurrentBid is monotonically non-decreasing for the ledger's lifetime.
//   - Bids contains no two entries with the same Key.
//   - CurrentBid >= the amount of every enumerated bid. It may lead the
//     ledger when a snapshot reports a higher headline value than the bids
//     it enumerates.
type BidLedger struct {
	CurrentBid float64
	Bids       []Bid

	seen map[string]bool
}

// NewBidLedger returns an empty ledger.
func NewBidLedger() *BidLedger {
	return &BidLedger{seen: make(map[string]bool)}
}

// ApplySnapshot replaces the bid history with an authoritative snapshot.
// The snapshot list arrives in server order, newest first. A stale snapshot
// must never lower an already-known current bid, so the headline value only
// ratchets up from the snapshot's leading entry.
func (l *BidLedger) ApplySnapshot(bids []Bid) {
	l.Bids = make([]Bid, 0, len(bids))
	l.seen = make(map[string]bool, len(bids))

	for _, b := range bids {
		key := b.Key()
		if key == "" || l.seen[key] {
			continue
		}
		l.seen[key] = true
		l.Bids = append(l.Bids, b)
	}

	if len(l.Bids) > 0 && l.Bids[0].Amount > l.CurrentBid {
		l.CurrentBid = l.Bids[0].Amount
	}
}

// ApplyIncrement merges incremental bids into the ledger. Candidates whose
// key is already present are skipped, but every candidate amount still raises
// the current-bid floor: a duplicate id reporting a higher amount is treated
// as a correction. Surviving bids are prepended newest-first. An empty
// increment is a no-op. Returns the number of bids added.
func (l *BidLedger) ApplyIncrement(candidates []Bid) int {
	if len(candidates) == 0 {
		return 0
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}

	var fresh []Bid
	for _, b := range candidates {
		if b.Amount > l.CurrentBid {
			l.CurrentBid = b.Amount
		}

		key := b.Key()
		if key == "" || l.seen[key] {
			continue
		}
		l.seen[key] = true
		fresh = append(fresh, b)
	}

	if len(fresh) > 0 {
		l.Bids = append(fresh, l.Bids...)
	}
	return len(fresh)
}

// HighestBid returns the leading bid, if any.
func (l *BidLedger) HighestBid() (Bid, bool) {
	if len(l.Bids) == 0 {
		return Bid{}, false
	}
	return l.Bids[0], true
}

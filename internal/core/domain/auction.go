package domain

import (
	"time"
)

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	StatusUpcoming AuctionStatus = "upcoming"
	StatusLive     AuctionStatus = "live"
	StatusPending  AuctionStatus = "pending"
	StatusSold     AuctionStatus = "sold"
)

// IsValid reports whether the status is one of the closed set of wire values.
func (s AuctionStatus) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusPending, StatusSold:
		return true
	}
	return false
}

// AuctionView is the dashboard's merged view model for one auction,
// assembled from the initial snapshot and subsequent partial updates.
// Views are never deleted within a session; ended auctions transition
// Status instead of disappearing.
type AuctionView struct {
	AuctionID     string
	VehicleID     string
	Title         string
	Make          string
	Model         string
	Year          int
	ImageURL      string
	CurrentBid    float64
	BidderCount   int
	Status        AuctionStatus
	StartTime     *time.Time
	EndTime       *time.Time
	TimeRemaining string
}

// VehicleFields is the nested fallback object some update envelopes carry
// under "vehicle" or "fullData".
type VehicleFields struct {
	VehicleID *string    `json:"vehicleId"`
	Title     *string    `json:"title"`
	Make      *string    `json:"make"`
	Model     *string    `json:"model"`
	Year      *int       `json:"year"`
	ImageURL  *string    `json:"imageUrl"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// AuctionUpdate is the canonical shape of an inbound auction event after
// ingress normalization. Pointer fields distinguish "absent" from zero so
// the merge can fall through to the next candidate source.
type AuctionUpdate struct {
	AuctionID   string         `json:"auctionId"`
	VehicleID   *string        `json:"vehicleId"`
	Title       *string        `json:"title"`
	Make        *string        `json:"make"`
	Model       *string        `json:"model"`
	Year        *int           `json:"year"`
	ImageURL    *string        `json:"imageUrl"`
	CurrentBid  *float64       `json:"currentBid"`
	BidderCount *int           `json:"bidderCount"`
	Status      *string        `json:"status"`
	StartTime   *time.Time     `json:"startTime"`
	EndTime     *time.Time     `json:"endTime"`
	Vehicle     *VehicleFields `json:"vehicle"`
	FullData    *VehicleFields `json:"fullData"`
}

// Merge candidate pickers. Each evaluates an ordered list of candidate
// sources and returns the first present one, making the field precedence an
// explicit table rather than inline optional-chaining.

func pickString(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return ""
}

func pickInt(candidates ...*int) int {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

func pickFloat(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

func pickTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func num(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func flt(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

// fallback flattens the update's nested vehicle objects into one candidate
// source, preferring "vehicle" over "fullData".
func (u AuctionUpdate) fallback() VehicleFields {
	var out VehicleFields
	for _, src := range []*VehicleFields{u.Vehicle, u.FullData} {
		if src == nil {
			continue
		}
		if out.VehicleID == nil {
			out.VehicleID = src.VehicleID
		}
		if out.Title == nil {
			out.Title = src.Title
		}
		if out.Make == nil {
			out.Make = src.Make
		}
		if out.Model == nil {
			out.Model = src.Model
		}
		if out.Year == nil {
			out.Year = src.Year
		}
		if out.ImageURL == nil {
			out.ImageURL = src.ImageURL
		}
		if out.StartTime == nil {
			out.StartTime = src.StartTime
		}
		if out.EndTime == nil {
			out.EndTime = src.EndTime
		}
	}
	return out
}

// MergeAuctionView folds an update into an existing view, or synthesizes a
// complete view when existing is nil (a previously-unseen or restarted
// auction). Every field follows the same precedence: incoming explicit value,
// then the locally-held value, then the nested fallback object, then the
// zero default. A partial update carrying only a changed bid therefore never
// blanks out previously known vehicle metadata.
func MergeAuctionView(existing *AuctionView, u AuctionUpdate) AuctionView {
	fb := u.fallback()

	var (
		exVehicleID, exTitle, exMake, exModel, exImage *string
		exYear, exBidderCount                          *int
		exCurrentBid                                   *float64
		exStart, exEnd                                 *time.Time
		exStatus                                       AuctionStatus
	)
	if existing != nil {
		exVehicleID = str(existing.VehicleID)
		exTitle = str(existing.Title)
		exMake = str(existing.Make)
		exModel = str(existing.Model)
		exImage = str(existing.ImageURL)
		exYear = num(existing.Year)
		exBidderCount = num(existing.BidderCount)
		exCurrentBid = flt(existing.CurrentBid)
		exStart = existing.StartTime
		exEnd = existing.EndTime
		exStatus = existing.Status
	}

	view := AuctionView{
		AuctionID:   u.AuctionID,
		VehicleID:   pickString(u.VehicleID, exVehicleID, fb.VehicleID),
		Title:       pickString(u.Title, exTitle, fb.Title),
		Make:        pickString(u.Make, exMake, fb.Make),
		Model:       pickString(u.Model, exModel, fb.Model),
		Year:        pickInt(u.Year, exYear, fb.Year),
		ImageURL:    pickString(u.ImageURL, exImage, fb.ImageURL),
		CurrentBid:  pickFloat(u.CurrentBid, exCurrentBid),
		BidderCount: pickInt(u.BidderCount, exBidderCount),
		StartTime:   pickTime(u.StartTime, exStart, fb.StartTime),
		EndTime:     pickTime(u.EndTime, exEnd, fb.EndTime),
	}

	if existing != nil {
		view.AuctionID = pickString(str(u.AuctionID), str(existing.AuctionID))
		view.TimeRemaining = existing.TimeRemaining
	}

	view.Status = exStatus
	if u.Status != nil {
		view.Status = AuctionStatus(*u.Status)
	}
	return view
}

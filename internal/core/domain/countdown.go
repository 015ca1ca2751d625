package domain

import (
	"fmt"
	"time"
)

// Countdown labels shown next to the formatted remaining time.
const (
	LabelStartsIn = "starts in"
	LabelEndsIn   = "ends in"
)

// CountdownState is the derived, display-only countdown for one scope.
// Server timestamps stay authoritative; this is never used to flip status.
type CountdownState struct {
	Label string
	Value string
}

// FormatRemaining renders a duration as the largest non-zero unit first
// among days, hours, minutes and seconds, omitting leading zero units:
// "2d 4h 0m 9s", "38s". Negative durations clamp to "0s".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)

	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// DeriveCountdown computes the countdown for one scope at the given instant.
// An upcoming auction counts down to its start, a live one to its end. A
// boundary already in the past clamps to zero rather than going negative;
// status transitions only ever arrive via explicit server events.
func DeriveCountdown(status AuctionStatus, startTime, endTime *time.Time, now time.Time) CountdownState {
	switch status {
	case StatusUpcoming:
		if startTime != nil {
			return CountdownState{Label: LabelStartsIn, Value: FormatRemaining(startTime.Sub(now))}
		}
	case StatusLive:
		if endTime != nil {
			return CountdownState{Label: LabelEndsIn, Value: FormatRemaining(endTime.Sub(now))}
		}
	}
	return CountdownState{Value: FormatRemaining(0)}
}

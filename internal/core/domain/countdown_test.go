package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openlot/bidsync/internal/core/domain"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"days lead", 2*24*time.Hour + 4*time.Hour + 9*time.Second, "2d 4h 0m 9s"},
		{"hours lead", 3*time.Hour + 15*time.Minute + 42*time.Second, "3h 15m 42s"},
		{"minutes lead", 5*time.Minute + 3*time.Second, "5m 3s"},
		{"seconds only", 38 * time.Second, "38s"},
		{"zero", 0, "0s"},
		{"negative clamps", -90 * time.Second, "0s"},
		{"sub-second truncates", 900 * time.Millisecond, "0s"},
		{"exact day", 24 * time.Hour, "1d 0h 0m 0s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.FormatRemaining(tc.d))
		})
	}
}

func TestDeriveCountdown(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	t.Run("upcoming counts down to start", func(t *testing.T) {
		start := now.Add(90 * time.Minute)
		state := domain.DeriveCountdown(domain.StatusUpcoming, &start, nil, now)

		assert.Equal(t, domain.LabelStartsIn, state.Label)
		assert.Equal(t, "1h 30m 0s", state.Value)
	})

	t.Run("live counts down to end", func(t *testing.T) {
		end := now.Add(38 * time.Second)
		state := domain.DeriveCountdown(domain.StatusLive, nil, &end, now)

		assert.Equal(t, domain.LabelEndsIn, state.Label)
		assert.Equal(t, "38s", state.Value)
	})

	t.Run("passed boundary clamps to zero without flipping anything", func(t *testing.T) {
		end := now.Add(-5 * time.Minute)
		state := domain.DeriveCountdown(domain.StatusLive, nil, &end, now)

		assert.Equal(t, domain.LabelEndsIn, state.Label)
		assert.Equal(t, "0s", state.Value)
	})

	t.Run("missing boundary timestamp yields zero", func(t *testing.T) {
		state := domain.DeriveCountdown(domain.StatusLive, nil, nil, now)
		assert.Empty(t, state.Label)
		assert.Equal(t, "0s", state.Value)
	})

	t.Run("terminal statuses have no countdown", func(t *testing.T) {
		end := now.Add(time.Hour)
		for _, status := range []domain.AuctionStatus{domain.StatusPending, domain.StatusSold} {
			state := domain.DeriveCountdown(status, nil, &end, now)
			assert.Equal(t, "0s", state.Value, "status %s", status)
		}
	})
}

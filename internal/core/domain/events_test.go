package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
)

func TestNormalizeBids(t *testing.T) {
	t.Run("single bid object", func(t *testing.T) {
		raw := json.RawMessage(`{"_id":"b1","auctionId":"auc-1","amount":1500}`)
		bids, err := domain.NormalizeBids(raw)

		require.NoError(t, err)
		require.Len(t, bids, 1)
		assert.Equal(t, "b1", bids[0].ID)
		assert.Equal(t, 1500.0, bids[0].Amount)
	})

	t.Run("bare array", func(t *testing.T) {
		raw := json.RawMessage(`[{"_id":"b1","amount":100},{"_id":"b2","amount":200}]`)
		bids, err := domain.NormalizeBids(raw)

		require.NoError(t, err)
		assert.Len(t, bids, 2)
	})

	t.Run("bids wrapper", func(t *testing.T) {
		raw := json.RawMessage(`{"auctionId":"auc-1","bids":[{"_id":"b1","amount":100}]}`)
		bids, err := domain.NormalizeBids(raw)

		require.NoError(t, err)
		require.Len(t, bids, 1)
		assert.Equal(t, "b1", bids[0].ID)
	})

	t.Run("nested data wrapper", func(t *testing.T) {
		raw := json.RawMessage(`{"data":{"bids":[{"id":"alt-1","amount":300}]}}`)
		bids, err := domain.NormalizeBids(raw)

		require.NoError(t, err)
		require.Len(t, bids, 1)
		assert.Equal(t, "alt-1", bids[0].Key())
	})

	t.Run("empty wrapper yields empty list not error", func(t *testing.T) {
		bids, err := domain.NormalizeBids(json.RawMessage(`{"bids":[]}`))
		require.NoError(t, err)
		assert.Empty(t, bids)
	})

	t.Run("empty payload", func(t *testing.T) {
		bids, err := domain.NormalizeBids(nil)
		require.NoError(t, err)
		assert.Empty(t, bids)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := domain.NormalizeBids(json.RawMessage(`{"bids": [nope]}`))
		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
	})

	t.Run("wrong field types", func(t *testing.T) {
		_, err := domain.NormalizeBids(json.RawMessage(`{"amount":"a lot"}`))
		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
	})
}

func TestNormalizeAuctionList(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		raw := json.RawMessage(`[{"auctionId":"a1"},{"auctionId":"a2"}]`)
		list, err := domain.NormalizeAuctionList(raw)

		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("auctions wrapper", func(t *testing.T) {
		raw := json.RawMessage(`{"auctions":[{"auctionId":"a1","status":"live"}]}`)
		list, err := domain.NormalizeAuctionList(raw)

		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a1", list[0].AuctionID)
		require.NotNil(t, list[0].Status)
		assert.Equal(t, "live", *list[0].Status)
	})

	t.Run("data wrapper", func(t *testing.T) {
		raw := json.RawMessage(`{"data":[{"auctionId":"a1"}]}`)
		list, err := domain.NormalizeAuctionList(raw)

		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := domain.NormalizeAuctionList(json.RawMessage(`[{]`))
		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
	})
}

func TestNormalizeAuctionUpdate(t *testing.T) {
	t.Run("partial update with nested vehicle", func(t *testing.T) {
		raw := json.RawMessage(`{"auctionId":"a1","currentBid":9000,"vehicle":{"make":"Ford","year":2019}}`)
		u, err := domain.NormalizeAuctionUpdate(raw)

		require.NoError(t, err)
		assert.Equal(t, "a1", u.AuctionID)
		require.NotNil(t, u.CurrentBid)
		assert.Equal(t, 9000.0, *u.CurrentBid)
		require.NotNil(t, u.Vehicle)
		assert.Equal(t, "Ford", *u.Vehicle.Make)
	})

	t.Run("absent fields stay nil", func(t *testing.T) {
		u, err := domain.NormalizeAuctionUpdate(json.RawMessage(`{"auctionId":"a1"}`))

		require.NoError(t, err)
		assert.Nil(t, u.CurrentBid)
		assert.Nil(t, u.Status)
		assert.Nil(t, u.Vehicle)
	})
}

func TestProbeAuctionID(t *testing.T) {
	assert.Equal(t, "a1", domain.ProbeAuctionID(json.RawMessage(`{"auctionId":"a1","bids":[]}`)))
	assert.Equal(t, "", domain.ProbeAuctionID(json.RawMessage(`{"bids":[]}`)))
	assert.Equal(t, "", domain.ProbeAuctionID(json.RawMessage(`[1,2]`)))
}

func TestNormalizeNotifications(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		raw := json.RawMessage(`{"_id":"n1","title":"Outbid","read":false}`)
		list, err := domain.NormalizeNotifications(raw)

		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "n1", list[0].ID)
		assert.False(t, list[0].Read)
	})

	t.Run("bare array", func(t *testing.T) {
		raw := json.RawMessage(`[{"_id":"n1"},{"_id":"n2"}]`)
		list, err := domain.NormalizeNotifications(raw)

		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("notifications wrapper", func(t *testing.T) {
		raw := json.RawMessage(`{"notifications":[{"id":"n1"}]}`)
		list, err := domain.NormalizeNotifications(raw)

		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("keyless object yields nothing", func(t *testing.T) {
		list, err := domain.NormalizeNotifications(json.RawMessage(`{"title":"hi"}`))
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestNormalizeUnreadCount(t *testing.T) {
	t.Run("bare number", func(t *testing.T) {
		n, err := domain.NormalizeUnreadCount(json.RawMessage(`7`))
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})

	t.Run("count wrapper", func(t *testing.T) {
		n, err := domain.NormalizeUnreadCount(json.RawMessage(`{"count":3}`))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := domain.NormalizeUnreadCount(json.RawMessage(`"three"`))
		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
	})
}

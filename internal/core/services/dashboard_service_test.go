package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/mocks"
	"github.com/openlot/bidsync/internal/core/services"
)

func strp(s string) *string   { return &s }
func fltp(f float64) *float64 { return &f }
func intp(n int) *int         { return &n }

func newDashboard(conn *mocks.FakeConn) *services.DashboardService {
	return services.NewDashboardService(conn, sessionWith(testUser), nil, nil, testLogger())
}

func TestDashboardService_Focus(t *testing.T) {
	ctx := context.Background()

	t.Run("joins the all-auctions room with view-all", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)

		require.NoError(t, svc.Focus(ctx))

		joins := conn.EmittedOf(domain.EventJoinRoom)
		require.Len(t, joins, 1)
		payload := joins[0].Payload.(domain.JoinRoomPayload)
		assert.Equal(t, "auction:all", payload.Scope)
		assert.True(t, payload.ViewAll)
	})

	t.Run("seeds views from the REST snapshot", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		listings := mocks.NewMockListingFetcher()
		listings.On("FetchAuctions", mock.Anything).Return([]domain.AuctionView{
			{AuctionID: "auc-1", Title: "Truck", Status: domain.StatusLive},
		}, nil)
		svc := services.NewDashboardService(conn, sessionWith(testUser), listings, nil, testLogger())

		require.NoError(t, svc.Focus(ctx))

		view, ok := svc.View("auc-1")
		require.True(t, ok)
		assert.Equal(t, "Truck", view.Title)
		listings.AssertExpectations(t)
	})

	t.Run("failed REST snapshot aborts focus", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		listings := mocks.NewMockListingFetcher()
		listings.On("FetchAuctions", mock.Anything).Return(nil, errors.New("boom"))
		svc := services.NewDashboardService(conn, sessionWith(testUser), listings, nil, testLogger())

		err := svc.Focus(ctx)

		require.Error(t, err)
		assert.Empty(t, conn.EmittedOf(domain.EventJoinRoom))
	})
}

func TestDashboardService_ApplyUpdate(t *testing.T) {
	t.Run("unknown auction id inserts a synthesized view", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())

		err := svc.ApplyUpdate(domain.AuctionUpdate{
			AuctionID:  "auc-9",
			Title:      strp("Surprise lot"),
			CurrentBid: fltp(500),
			Status:     strp("live"),
		})

		require.NoError(t, err)
		view, ok := svc.View("auc-9")
		require.True(t, ok)
		assert.Equal(t, "Surprise lot", view.Title)
		assert.Equal(t, domain.StatusLive, view.Status)
	})

	t.Run("partial update merges into the known view", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{
			AuctionID: "auc-1",
			Title:     strp("2019 Ford F-150"),
			Status:    strp("live"),
		}))

		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{
			AuctionID:   "auc-1",
			CurrentBid:  fltp(14250),
			BidderCount: intp(7),
		}))

		view, _ := svc.View("auc-1")
		assert.Equal(t, "2019 Ford F-150", view.Title)
		assert.Equal(t, 14250.0, view.CurrentBid)
		assert.Equal(t, 7, view.BidderCount)
		assert.Equal(t, domain.StatusLive, view.Status)
	})

	t.Run("missing auction id is rejected", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())

		err := svc.ApplyUpdate(domain.AuctionUpdate{CurrentBid: fltp(100)})

		assert.ErrorIs(t, err, apperrors.ErrMissingAuctionID)
		assert.Empty(t, svc.Views())
	})

	t.Run("unknown status is rejected and the view untouched", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "auc-1", Status: strp("live")}))

		err := svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "auc-1", Status: strp("cancelled")})

		assert.ErrorIs(t, err, apperrors.ErrUnknownStatus)
		view, _ := svc.View("auc-1")
		assert.Equal(t, domain.StatusLive, view.Status)
	})
}

func TestDashboardService_ApplyCompletion(t *testing.T) {
	t.Run("live flips to pending", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "auc-1", Status: strp("live")}))

		svc.ApplyCompletion("auc-1")

		view, _ := svc.View("auc-1")
		assert.Equal(t, domain.StatusPending, view.Status)
	})

	t.Run("idempotent on repeat delivery", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "auc-1", Status: strp("live")}))

		svc.ApplyCompletion("auc-1")
		svc.ApplyCompletion("auc-1")

		view, _ := svc.View("auc-1")
		assert.Equal(t, domain.StatusPending, view.Status)
	})

	t.Run("non-live statuses are untouched", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "auc-1", Status: strp("sold")}))

		svc.ApplyCompletion("auc-1")

		view, _ := svc.View("auc-1")
		assert.Equal(t, domain.StatusSold, view.Status)
	})

	t.Run("unknown auction is a no-op", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		svc.ApplyCompletion("auc-404")
		assert.Empty(t, svc.Views())
	})
}

func TestDashboardService_BulkLoad(t *testing.T) {
	t.Run("replaces the map and drops invalid entries", func(t *testing.T) {
		svc := newDashboard(mocks.NewFakeConn())
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{AuctionID: "stale", Status: strp("live")}))

		svc.BulkLoad([]domain.AuctionUpdate{
			{AuctionID: "auc-1", Status: strp("live")},
			{AuctionID: "auc-2", Status: strp("upcoming")},
			{AuctionID: "", Status: strp("live")},
			{AuctionID: "auc-3", Status: strp("cancelled")},
		})

		views := svc.Views()
		require.Len(t, views, 2)
		_, stale := svc.View("stale")
		assert.False(t, stale)
	})
}

func TestDashboardService_BulkLoadCountdowns(t *testing.T) {
	t.Run("replaced auctions lose their countdown registrations", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
		countdown := services.NewCountdownService(clock, testLogger())
		svc := services.NewDashboardService(conn, sessionWith(testUser), nil, countdown, testLogger())

		end := clock.Now().Add(time.Hour)
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{
			AuctionID: "auc-old", Status: strp("live"), EndTime: &end,
		}))
		require.True(t, countdown.Registered("auc-old"))

		svc.BulkLoad([]domain.AuctionUpdate{
			{AuctionID: "auc-new", Status: strp("live"), EndTime: &end},
		})

		assert.False(t, countdown.Registered("auc-old"), "stale scope must stop ticking")
		assert.True(t, countdown.Registered("auc-new"))
	})

	t.Run("surviving auctions keep their registration", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
		countdown := services.NewCountdownService(clock, testLogger())
		svc := services.NewDashboardService(conn, sessionWith(testUser), nil, countdown, testLogger())

		end := clock.Now().Add(time.Hour)
		require.NoError(t, svc.ApplyUpdate(domain.AuctionUpdate{
			AuctionID: "auc-1", Status: strp("live"), EndTime: &end,
		}))

		svc.BulkLoad([]domain.AuctionUpdate{{AuctionID: "auc-1", Status: strp("live"), EndTime: &end}})

		assert.True(t, countdown.Registered("auc-1"))
	})
}

func TestDashboardService_StreamHandlers(t *testing.T) {
	ctx := context.Background()

	t.Run("auction_update events land in the view map", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)
		require.NoError(t, svc.Focus(ctx))

		conn.Dispatch(domain.EventAuctionUpdate, map[string]any{
			"auctionId":  "auc-7",
			"currentBid": 3200,
			"status":     "live",
		})

		view, ok := svc.View("auc-7")
		require.True(t, ok)
		assert.Equal(t, 3200.0, view.CurrentBid)
	})

	t.Run("auction_completed flips the status", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)
		require.NoError(t, svc.Focus(ctx))
		conn.Dispatch(domain.EventAuctionUpdate, map[string]any{"auctionId": "auc-7", "status": "live"})

		conn.Dispatch(domain.EventAuctionCompleted, domain.CompletionPayload{AuctionID: "auc-7"})

		view, _ := svc.View("auc-7")
		assert.Equal(t, domain.StatusPending, view.Status)
	})

	t.Run("status_changed applies the carried status", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)
		require.NoError(t, svc.Focus(ctx))
		conn.Dispatch(domain.EventAuctionUpdate, map[string]any{"auctionId": "auc-7", "status": "upcoming"})

		conn.Dispatch(domain.EventStatusChanged, domain.CompletionPayload{AuctionID: "auc-7", Status: "live"})

		view, _ := svc.View("auc-7")
		assert.Equal(t, domain.StatusLive, view.Status)
	})

	t.Run("auction_list replaces the map wholesale", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)
		require.NoError(t, svc.Focus(ctx))

		conn.DispatchRaw(domain.EventAuctionList, []byte(`{"auctions":[{"auctionId":"a1","status":"live"},{"auctionId":"a2","status":"upcoming"}]}`))

		assert.Len(t, svc.Views(), 2)
	})

	t.Run("malformed stream payloads are dropped silently", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		svc := newDashboard(conn)
		require.NoError(t, svc.Focus(ctx))

		conn.DispatchRaw(domain.EventAuctionUpdate, []byte(`{nope}`))
		conn.DispatchRaw(domain.EventAuctionCompleted, []byte(`{}`))

		assert.Empty(t, svc.Views())
	})
}

func TestDashboardService_Countdown(t *testing.T) {
	ctx := context.Background()

	t.Run("ticks update time remaining on the view", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
		countdown := services.NewCountdownService(clock, testLogger())
		svc := services.NewDashboardService(conn, sessionWith(testUser), nil, countdown, testLogger())
		require.NoError(t, svc.Focus(ctx))

		end := clock.Now().Add(38 * time.Second)
		endStr := end.Format(time.RFC3339)
		conn.Dispatch(domain.EventAuctionUpdate, map[string]any{
			"auctionId": "auc-1",
			"status":    "live",
			"endTime":   endStr,
		})

		countdown.Start()
		defer countdown.Stop()
		clock.BlockUntil(1)
		clock.Advance(time.Second)

		assert.Eventually(t, func() bool {
			view, ok := svc.View("auc-1")
			return ok && view.TimeRemaining == "37s"
		}, time.Second, 10*time.Millisecond)
	})
}

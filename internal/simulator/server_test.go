package simulator_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/bidsync/internal/core/domain"
	"github.com/openlot/bidsync/internal/simulator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) (*simulator.Server, *httptest.Server) {
	t.Helper()
	sim := simulator.New(simulator.DefaultConfig("test-secret"), testLogger())
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)
	return sim, srv
}

func TestServer_Healthz(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Listings(t *testing.T) {
	t.Run("rejects requests without a token", func(t *testing.T) {
		_, srv := newServer(t)

		resp, err := http.Get(srv.URL + "/api/auctions/live")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("returns seeded auctions for a valid token", func(t *testing.T) {
		sim, srv := newServer(t)
		sim.Seed(
			domain.AuctionView{AuctionID: "auc-1", Title: "Truck", Status: domain.StatusLive, CurrentBid: 1400},
			domain.AuctionView{AuctionID: "auc-2", Status: domain.StatusUpcoming},
		)

		token, err := sim.Tokens().GenerateToken(domain.UserRef{ID: "u-1", Role: "operator"}, time.Hour)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auctions/live", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		updates, err := domain.NormalizeAuctionList(json.RawMessage(body))
		require.NoError(t, err)
		assert.Len(t, updates, 2)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		sim, srv := newServer(t)
		token, err := sim.Tokens().GenerateToken(domain.UserRef{ID: "u-1"}, -time.Minute)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auctions/live", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_WebsocketAuth(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

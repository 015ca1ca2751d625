package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// ListingClient fetches the one-shot REST auction snapshot consumed before
// the event stream takes over. It is independent of the persistent
// connection and authenticated with the same bearer token.
type ListingClient struct {
	baseURL string
	client  *http.Client
	session ports.SessionProvider
	logger  *slog.Logger
}

var _ ports.ListingFetcher = (*ListingClient)(nil)

// NewListingClient builds a client for the given API base URL.
func NewListingClient(baseURL string, session ports.SessionProvider, logger *slog.Logger) *ListingClient {
	return &ListingClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		session: session,
		logger:  logger.With("component", "rest"),
	}
}

// FetchAuctions retrieves the initial auction listing snapshot.
func (c *ListingClient) FetchAuctions(ctx context.Context) ([]domain.AuctionView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auctions/live", nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTerminalError(err, "Could not load auctions. Tap to retry.")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: listing snapshot returned %d", apperrors.ErrSnapshotFailed, resp.StatusCode)
		return nil, apperrors.NewTerminalError(err, "Could not load auctions. Tap to retry.")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read listing response: %w", err)
	}

	updates, err := domain.NormalizeAuctionList(json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("decode listing response: %w", err)
	}

	views := make([]domain.AuctionView, 0, len(updates))
	for _, u := range updates {
		if u.AuctionID == "" {
			c.logger.Debug("skipped listing entry without auction id")
			continue
		}
		views = append(views, domain.MergeAuctionView(nil, u))
	}

	c.logger.Debug("listing snapshot fetched", "auctions", len(views))
	return views, nil
}

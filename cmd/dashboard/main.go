package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlot/bidsync/internal/adapters/secondary/rest"
	"github.com/openlot/bidsync/internal/adapters/secondary/socket"
	"github.com/openlot/bidsync/internal/auth"
	"github.com/openlot/bidsync/internal/config"
	"github.com/openlot/bidsync/internal/core/domain"
	"github.com/openlot/bidsync/internal/core/services"
	"github.com/openlot/bidsync/internal/infrastructure/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting operator dashboard",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	session := auth.NewStaticSession(cfg.Session.Token, domain.UserRef{
		ID:    cfg.Session.UserID,
		Name:  cfg.Session.UserName,
		Email: cfg.Session.UserEmail,
		Role:  cfg.Session.UserRole,
	})

	connCfg := socket.DefaultConfig(cfg.Sync.URL)
	connCfg.DialTimeout = cfg.Sync.DialTimeout
	connCfg.ReconnectMin = cfg.Sync.ReconnectMin
	connCfg.ReconnectMax = cfg.Sync.ReconnectMax
	conn := socket.New(connCfg, session, logger)
	defer conn.Close()

	clock := clockwork.NewRealClock()
	countdown := services.NewCountdownService(clock, logger)
	countdown.Start()
	defer countdown.Stop()

	listings := rest.NewListingClient(cfg.API.BaseURL, session, logger)
	dashboard := services.NewDashboardService(conn, session, listings, countdown, logger)

	ctx := context.Background()
	if err := dashboard.Focus(ctx); err != nil {
		logger.Error("failed to start dashboard session", "error", err)
		os.Exit(1)
	}
	defer dashboard.Blur()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	refresh := time.NewTicker(5 * time.Second)
	defer refresh.Stop()

	render(dashboard, conn)
	for {
		select {
		case <-stop:
			logger.Info("shutting down")
			return
		case <-refresh.C:
			render(dashboard, conn)
		}
	}
}

func render(dashboard *services.DashboardService, conn *socket.Conn) {
	views := dashboard.Views()
	fmt.Printf("\n%-12s %-28s %-9s %12s %8s %14s\n",
		"AUCTION", "VEHICLE", "STATUS", "CURRENT BID", "BIDDERS", "REMAINING")
	for _, v := range views {
		vehicle := v.Title
		if vehicle == "" {
			vehicle = fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
		}
		fmt.Printf("%-12s %-28.28s %-9s %12.2f %8d %14s\n",
			v.AuctionID, vehicle, v.Status, v.CurrentBid, v.BidderCount, v.TimeRemaining)
	}
	if !conn.IsConnected() {
		fmt.Println("-- reconnecting --")
	}
}

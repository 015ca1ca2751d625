package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlot/bidsync/internal/config"
	"github.com/openlot/bidsync/internal/core/domain"
	"github.com/openlot/bidsync/internal/infrastructure/logging"
	"github.com/openlot/bidsync/internal/simulator"
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
		Output:      os.Stdout,
		ServiceName: "bidsync-simulator",
		Environment: cfg.App.Environment,
	})

	secret := cfg.Simulator.JWTSecret
	if secret == "" {
		if !cfg.IsDevelopment() {
			logger.Error("SIM_JWT_SECRET is required outside development")
			os.Exit(1)
		}
		secret = "dev-secret"
	}

	sim := simulator.New(simulator.Config{
		JWTSecret:      secret,
		AllowedOrigins: cfg.Simulator.AllowedOrigins,
		BidsPerSecond:  cfg.Simulator.BidsPerSecond,
		BidBurst:       cfg.Simulator.BidBurst,
	}, logger)
	seed(sim)

	if cfg.IsDevelopment() {
		token, err := sim.Tokens().GenerateToken(domain.UserRef{
			ID:   "op-1",
			Name: "operator",
			Role: "operator",
		}, 24*time.Hour)
		if err == nil {
			logger.Info("development operator token issued", "token", token)
		}
	}

	server := &http.Server{
		Addr:         cfg.Simulator.Port,
		Handler:      sim.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("simulator listening", "addr", cfg.Simulator.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Simulator.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func seed(sim *simulator.Server) {
	now := time.Now().UTC()
	liveEnd := now.Add(45 * time.Minute)
	upcomingStart := now.Add(2 * time.Hour)

	sim.Seed(
		domain.AuctionView{
			AuctionID:  "auc-1001",
			VehicleID:  "veh-31",
			Title:      "2019 Ford F-150 XLT",
			Make:       "Ford",
			Model:      "F-150",
			Year:       2019,
			Status:     domain.StatusLive,
			CurrentBid: 14250,
			EndTime:    &liveEnd,
		},
		domain.AuctionView{
			AuctionID: "auc-1002",
			VehicleID: "veh-58",
			Title:     "2021 Toyota Camry SE",
			Make:      "Toyota",
			Model:     "Camry",
			Year:      2021,
			Status:    domain.StatusUpcoming,
			StartTime: &upcomingStart,
		},
	)
	sim.SeedBids("auc-1001",
		domain.Bid{ID: "seed-2", AuctionID: "auc-1001", Amount: 14250, BidderID: "u-7", BidderName: "J. Alvarez", CreatedAt: now.Add(-3 * time.Minute)},
		domain.Bid{ID: "seed-1", AuctionID: "auc-1001", Amount: 14000, BidderID: "u-4", BidderName: "M. Chen", CreatedAt: now.Add(-9 * time.Minute)},
	)
}

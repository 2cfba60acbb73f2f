package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coinbot/internal/api"
	"coinbot/internal/auth"
	"coinbot/internal/catalog"
	"coinbot/internal/config"
	"coinbot/internal/economy"
	"coinbot/internal/metrics"
	"coinbot/internal/store"
	"coinbot/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	keys, err := auth.NewKeyVerifier(cfg.APIKeyHash)
	if err != nil {
		logger.Error("api key hash invalid", "err", err)
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Economy.CatalogFile)
	if err != nil {
		logger.Error("load catalog failed", "err", err)
		os.Exit(1)
	}

	backend, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("open store failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	engine, err := economy.NewEngine(backend, cat,
		economy.Config{Cooldown: cfg.Economy.Cooldown, Reward: cfg.Economy.Reward},
		economy.WithLogger(logger),
		economy.WithObserver(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	server := api.New(logger, keys, engine)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("coinbot api listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "items", cat.Len())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinbot/internal/catalog"
	"coinbot/internal/commands"
	"coinbot/internal/config"
	"coinbot/internal/discord"
	"coinbot/internal/economy"
	"coinbot/internal/metrics"
	"coinbot/internal/store"
	"coinbot/internal/telemetry"
	"coinbot/internal/whatsapp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadBotFromEnv()
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

	recorder := metrics.New(prometheus.DefaultRegisterer)
	engine, err := economy.NewEngine(backend, cat,
		economy.Config{Cooldown: cfg.Economy.Cooldown, Reward: cfg.Economy.Reward},
		economy.WithLogger(logger),
		economy.WithObserver(recorder),
	)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	var runners []func(context.Context) error

	if cfg.WhatsAppEnabled {
		container, err := whatsapp.OpenSession(ctx, cfg.WhatsAppSession, logger)
		if err != nil {
			logger.Error("whatsapp session store failed", "err", err)
			os.Exit(1)
		}
		router := commands.NewRouter(engine, cfg.Prefix,
			commands.WithLogger(logger),
			commands.WithObserver("whatsapp", recorder))
		bot, err := whatsapp.New(ctx, container, router, logger, whatsapp.Options{ReactionClearWait: cfg.ReactionClearWait})
		if err != nil {
			logger.Error("whatsapp init failed", "err", err)
			os.Exit(1)
		}
		defer bot.Close()
		runners = append(runners, bot.Run)
	}

	if cfg.DiscordToken != "" {
		router := commands.NewRouter(engine, cfg.Prefix,
			commands.WithLogger(logger),
			commands.WithObserver("discord", recorder),
			commands.WithMentionFormat(discord.Mention))
		bot, err := discord.New(cfg.DiscordToken, router, logger, cfg.ReactionClearWait)
		if err != nil {
			logger.Error("discord init failed", "err", err)
			os.Exit(1)
		}
		runners = append(runners, bot.Run)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	logger.Info("coinbot started", "store", cfg.Store.Driver, "prefix", cfg.Prefix, "transports", len(runners))

	// One failing transport stops the others.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failed   error
	)
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(runCtx); err != nil {
				failOnce.Do(func() { failed = err })
				cancel()
			}
		}(run)
	}
	wg.Wait()

	if failed != nil {
		logger.Error("transport failed", "err", failed)
		os.Exit(1)
	}
	logger.Info("coinbot shutdown")
}

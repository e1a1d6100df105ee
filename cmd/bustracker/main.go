package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bustracker-data/internal/api"
	"github.com/bustracker-data/internal/arrivals"
	"github.com/bustracker-data/internal/common/config"
	"github.com/bustracker-data/internal/common/discord"
	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/datamall"
	"github.com/bustracker-data/internal/history"
	"github.com/bustracker-data/internal/retention"
	"github.com/bustracker-data/internal/routing"
	"github.com/bustracker-data/internal/store"
	"github.com/bustracker-data/internal/topology"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger.InitLogger(logger.LoggerConfig{
		Level:           logger.ParseLogLevel(cfg.Logging.Level),
		Console:         true,
		File:            true,
		FilePath:        cfg.Logging.FilePath,
		MaxSizeMB:       10,
		MaxBackups:      5,
		MaxAgeDays:      30,
		Compress:        true,
		TimeFieldFormat: time.RFC3339,
	})

	log := logger.New(
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("Bus tracker data service starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"db_driver", cfg.Database.Driver,
		"feed_url", cfg.DataMall.BaseURL,
	)

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN(), log)
	if err != nil {
		log.Fatal("Failed to open database", "error", err)
	}
	defer st.Close()

	notifier := discord.NewNotifier(cfg.Logging.DiscordURL)
	feed := datamall.NewClient(cfg.DataMall, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Populate the stop/route repository. A sync failure is fatal only when
	// there is no cached topology to fall back on.
	syncer := topology.NewSyncer(st, feed, feed, log)
	if err := syncer.EnsureLoaded(ctx); err != nil {
		if alertErr := notifier.Alert("Topology sync failed", err.Error()); alertErr != nil {
			log.Warn("Failed to send alert", "error", alertErr)
		}
		stops, countErr := st.CountStops(ctx)
		if countErr != nil || stops == 0 {
			log.Fatal("Topology sync failed with no cached data", "error", err)
		}
		log.Error("Topology sync failed, continuing with cached data", "error", err)
	}

	index := routing.NewIndex(st, log)
	if err := index.Rebuild(ctx); err != nil {
		log.Fatal("Failed to build route graph", "error", err)
	}

	resolver := routing.NewResolver(index, routing.Options{
		MinutesPerStop:  cfg.Routing.MinutesPerStop,
		TransferPenalty: cfg.Routing.TransferPenalty,
		MaxResults:      cfg.Routing.MaxResults,
		PreferDirect:    cfg.Routing.PreferDirect,
	})

	var wg sync.WaitGroup

	// Live arrival collector (disabled without a feed account key).
	collector := arrivals.New(arrivals.Config{
		Interval:        cfg.Collector.Interval,
		Workers:         cfg.Collector.Workers,
		RateLimitPerMin: cfg.Collector.RateLimitPerMin,
		ChangeThreshold: cfg.Collector.ChangeThreshold,
	}, st, feed, notifier, log)
	if cfg.DataMall.AccountKey != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := collector.Start(ctx); err != nil {
				log.Error("Arrival collector error", "error", err)
			}
		}()
	} else {
		log.Info("Arrival collector disabled (no account key provided)")
	}

	sweeper := retention.NewSweeper(st, retention.Config{
		Window:        cfg.Retention.Window,
		SweepInterval: cfg.Retention.SweepInterval,
		InitialDelay:  time.Minute,
	}, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sweeper.Start(ctx); err != nil {
			log.Error("Retention sweeper error", "error", err)
		}
	}()

	aggregator := history.NewAggregator(st, log)
	handler := api.NewHandler(resolver, index, st, feed, aggregator, collector, sweeper, log)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(handler, cfg.Server.AllowedOrigins),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	wg.Wait()

	log.Info("Bus tracker data service stopped")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ratewatch/internal/adapter/history"
	httpRouter "ratewatch/internal/adapter/http"
	"ratewatch/internal/adapter/source"
	"ratewatch/internal/config"
	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/internal/metrics"
	"ratewatch/internal/service"
	"ratewatch/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger(os.Getenv("LOG_LEVEL"))
	log.Info("Starting rate watcher")

	cfg, err := config.LoadConfig(os.Getenv("RATEWATCH_CONFIG"))
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appMetrics := metrics.NewMetrics()

	browser, err := source.NewBrowser(cfg.Source, log)
	if err != nil {
		log.Error("Failed to start browser source", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	store, cleanup, err := buildHistoryStore(cfg.History, log)
	if err != nil {
		log.Error("Failed to initialize history store", "backend", cfg.History.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	policy := service.Policy{
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		Backoff:           cfg.Fetch.Backoff,
		PerAttemptTimeout: cfg.Fetch.PerAttemptTimeout,
		SanityMin:         cfg.Fetch.SanityMin,
		SanityMax:         cfg.Fetch.SanityMax,
	}
	fetcher := service.NewFetchController(browser, policy, log, appMetrics)

	sched := service.NewScheduler(fetcher, store, cfg.Scheduler.Interval, policy, log, appMetrics)
	pairs := pairsFromConfig(cfg.Source.Pairs, log)

	handler := httpRouter.NewHandler(store, sched, log, appMetrics)
	router := httpRouter.NewRouter(handler, log, appMetrics)
	routes := router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancelRefresh := context.WithCancel(context.Background())

	if cfg.Source.HistoryURL != "" {
		sched.Backfill(ctx, browser, pairs)
	}
	go sched.Run(ctx, pairs)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	cancelRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

func buildHistoryStore(cfg config.HistoryConfig, log *logger.Logger) (ports.HistoryStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return history.NewMemoryStore(cfg.MaxSamples, cfg.MaxAge, log), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := history.NewRedisStore(client, cfg.MaxSamples, cfg.MaxAge, log)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return store, func() { client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := history.NewPostgresStore(initCtx, pool, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func pairsFromConfig(configs []config.PairConfig, log *logger.Logger) []model.CurrencyPair {
	pairs := make([]model.CurrencyPair, 0, len(configs))
	for _, pc := range configs {
		pair, err := model.NewPair(pc.Base, pc.Quote)
		if err != nil {
			log.Error("Skipping invalid pair in configuration", "base", pc.Base, "quote", pc.Quote, "error", err)
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

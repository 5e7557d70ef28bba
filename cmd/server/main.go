package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/handler"
	"github.com/padel-league/internal/kafka"
	"github.com/padel-league/internal/notify"
	"github.com/padel-league/internal/postgres"
	"github.com/padel-league/internal/redis"
	"github.com/padel-league/internal/service"
	"github.com/padel-league/internal/websocket"
	"github.com/padel-league/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	level.Set(cfg.Log.SlogLevel())

	engine, err := cfg.Rating.Engine()
	if err != nil {
		logger.Error("invalid rating configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rankings, err := redis.NewRankingService(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rankings.Close()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Event fan-out: NATS when enabled, the log otherwise
	var notifier service.Notifier = notify.NewLogNotifier(logger)
	if cfg.NATS.Enabled {
		publisher, err := notify.NewNATSPublisher(&cfg.NATS, logger)
		if err != nil {
			logger.Warn("failed to connect to NATS, events go to the log only", "error", err)
		} else {
			defer publisher.Close()
			notifier = publisher
		}
	}

	leagueService := service.NewLeagueService(
		repo,
		rankings,
		engine,
		wsHub,
		notifier,
		&cfg.Rating,
		&cfg.Leaderboard,
		logger,
	)
	lobbyService := service.NewLobbyService(
		repo,
		rankings,
		wsHub,
		notifier,
		&cfg.Lobby,
		logger,
	)

	syncWorker := worker.NewSyncWorker(repo, rankings, &cfg.Sync, logger)

	// Rebuild the boards from PostgreSQL on startup (recovery)
	logger.Info("syncing leaderboards from database to Redis")
	if err := syncWorker.SyncAll(ctx); err != nil {
		logger.Warn("failed to sync from database on startup", "error", err)
	}

	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leagueService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(leagueService, lobbyService, syncWorker, wsHub, map[string]handler.Pinger{
		"postgres": repo,
		"redis":    rankings,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake first so no match is rated after the stores close
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}
	wsHub.Stop()

	logger.Info("server stopped")
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CinitSwift/divide/internal/api"
	"github.com/CinitSwift/divide/internal/auth"
	"github.com/CinitSwift/divide/internal/config"
	"github.com/CinitSwift/divide/internal/database"
	"github.com/CinitSwift/divide/internal/middleware"
	"github.com/CinitSwift/divide/internal/pubsub"
	"github.com/CinitSwift/divide/internal/room"
	"github.com/CinitSwift/divide/internal/server"
	"github.com/CinitSwift/divide/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, "migrations"); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	userRepo := database.NewUserRepository(db)
	roomRepo := database.NewRoomRepository(db)

	tokenService, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	var provider auth.Provider
	switch cfg.AuthProviderDriver {
	case "oauth":
		provider = auth.NewOAuthProvider(cfg.AuthProviderAppID, cfg.AuthProviderSecret, cfg.AuthProviderURL, logger)
	default:
		provider = auth.NewCodeProvider(cfg.AuthProviderAppID, cfg.AuthProviderSecret, cfg.AuthProviderURL, logger)
	}
	authService := auth.NewService(userRepo, provider, tokenService, logger)

	// The publisher drives realtime fan-out. The memory and redis
	// drivers also act as the local broker behind the websocket
	// gateway; the pusher driver hands fan-out to the external service
	// and the gateway stays unmounted.
	var (
		publisher pubsub.Publisher
		broker    pubsub.Broker
	)
	switch cfg.PublisherDriver {
	case "redis":
		redisBroker, err := pubsub.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		publisher, broker = redisBroker, redisBroker
	case "pusher":
		publisher = pubsub.NewPusherPublisher(pubsub.PusherConfig{
			AppID:   cfg.PublisherAppID,
			Key:     cfg.PublisherKey,
			Secret:  cfg.PublisherSecret,
			Cluster: cfg.PublisherCluster,
		})
	default:
		memBroker := pubsub.NewMemoryBroker()
		publisher, broker = memBroker, memBroker
	}
	defer func() { _ = publisher.Close() }()
	slog.Info("publisher ready", "driver", cfg.PublisherDriver)

	roomService := room.NewService(roomRepo, publisher, logger, nil)

	var wsHandler http.Handler
	if broker != nil {
		gateway := websocket.NewGateway(broker, logger)
		wsHandler = websocket.NewHandler(gateway, logger)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	deps := &server.Dependencies{
		DB:          db,
		AuthService: authService,
		AuthHandler: api.NewAuthHandler(authService, logger),
		RoomHandler: api.NewRoomHandler(roomService, logger),
		WSHandler:   wsHandler,
		RateLimiter: limiter,
		Logger:      logger,
	}
	srv := server.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go limiter.Run(shutdownCtx)

	go func() {
		slog.Info("starting server", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence-service/internal/adapters/kafka"
	"presence-service/internal/api/routes"
	"presence-service/internal/auth"
	"presence-service/internal/config"
	"presence-service/internal/database"
	"presence-service/internal/presence"
	"presence-service/internal/repositories/postgres"
	"presence-service/internal/services"
	"presence-service/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("Starting presence service")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	roomRepo := postgres.NewRoomRepository(db)
	userRepo := postgres.NewUserRepository(db)
	friendRepo := postgres.NewFriendRepository(db)
	redisService := services.NewRedisService(redisClient)

	coordinator := presence.NewCoordinator(roomRepo, userRepo, friendRepo, logger)
	coordinator.AttachStatusMirror(redisService)

	if len(cfg.Kafka.Brokers) > 0 {
		feed := kafka.NewTransitionFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer feed.Close()
		coordinator.AttachTransitionFeed(feed)
	}

	hub := websocket.NewHub(coordinator, logger)
	coordinator.AttachGateway(hub)
	go hub.Run()
	defer hub.Stop()

	// Forward online/offline edges announced by other instances to clients
	// connected here.
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		for update := range redisService.SubscribeStatusUpdates(subCtx) {
			coordinator.HandleRemoteStatus(subCtx, update.UserID, update.IsOnline)
		}
	}()

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpirationTime)

	router := routes.NewRouter(hub, coordinator, db, tokens)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server exited")
}

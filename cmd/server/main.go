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

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/handlers"
	"github.com/waveroom/backend/internal/lifecycle"
	"github.com/waveroom/backend/internal/logging"
	"github.com/waveroom/backend/internal/nowplaying"
	"github.com/waveroom/backend/internal/poller"
	"github.com/waveroom/backend/internal/provider"
	"github.com/waveroom/backend/internal/router"
	"github.com/waveroom/backend/internal/services"
	"github.com/waveroom/backend/internal/session"
	"github.com/waveroom/backend/internal/store"
	"github.com/waveroom/backend/internal/ws"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the store
	rdb, err := store.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	// Services
	repo := session.New(rdb, cfg.RoomTTL)
	authService := services.NewAuthService(cfg.JWTSecret, cfg.CreatorTokenDuration)
	nameService := services.NewNameService()
	spotifyService := provider.NewSpotifyService(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	radioService := provider.NewRadioService()

	// Event plumbing
	hub := ws.NewHub()
	pub := fanout.NewPublisher(rdb)
	sub := fanout.NewSubscriber(rdb, hub)
	reconciler := nowplaying.New(repo, pub)

	// Handlers
	roomHandler := handlers.NewRoomHandler(repo, authService, nameService, pub, cfg)
	searchHandler := handlers.NewSearchHandler(spotifyService)
	portalHandler := handlers.NewPortalHandler(cfg)
	configHandler := handlers.NewConfigHandler(cfg)
	socketHandler := handlers.NewSocketHandler(hub, repo, nameService, spotifyService, pub, cfg)

	// Background workers
	scheduler := poller.NewScheduler(cfg, rdb, repo, spotifyService, radioService, reconciler, pub)
	sweeper := lifecycle.NewSweeper(cfg, repo, pub)

	go hub.Run()
	go sub.Run(ctx)
	go scheduler.Run(ctx)
	go sweeper.Run(ctx)

	r := router.New(cfg, router.Deps{
		AuthService:   authService,
		RoomHandler:   roomHandler,
		SearchHandler: searchHandler,
		PortalHandler: portalHandler,
		ConfigHandler: configHandler,
		SocketHandler: socketHandler,
	})

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		slog.Info("starting server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	cancel()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}
}

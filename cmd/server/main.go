package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/auth"
	"github.com/freeeve/starlane/internal/config"
	"github.com/freeeve/starlane/internal/handler"
	"github.com/freeeve/starlane/internal/logger"
	"github.com/freeeve/starlane/internal/middleware"
	"github.com/freeeve/starlane/internal/repository"
	"github.com/freeeve/starlane/internal/repository/postgres"
	redisrepo "github.com/freeeve/starlane/internal/repository/redis"
	"github.com/freeeve/starlane/internal/repository/sqlite"
	"github.com/freeeve/starlane/internal/service"
	"github.com/freeeve/starlane/pkg/starlane"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Options{})
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Dev: cfg.Dev})
	if _, err := starlane.MapByName(cfg.MapName); err != nil {
		log.Fatal().Err(err).Str("map", cfg.MapName).Msg("Unknown default map")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer store.Close()

	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()
	if err := redisClient.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to enable Redis expiry events, relying on the deadline poller")
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	wsHub := handler.NewHub()

	durations := service.Durations{
		Movement: cfg.MovementDuration,
		Retreat:  cfg.RetreatDuration,
		Build:    cfg.BuildDuration,
	}
	gameSvc := service.NewGameService(store, store, redisClient, durations)
	orderSvc := service.NewOrderService(store, store, redisClient, redisClient, wsHub)
	phaseSvc := service.NewPhaseService(store, store, redisClient, redisClient, wsHub)
	timerListener := service.NewTimerListener(redisClient, phaseSvc, store)

	api := handler.NewAPI(
		handler.NewGameHandler(gameSvc, cfg.MapName),
		handler.NewOrderHandler(orderSvc, phaseSvc),
		handler.NewPhaseHandler(gameSvc, phaseSvc),
	)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", auth.Middleware(jwtMgr)(api)))
	// WebSocket clients authenticate inside the handler.
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rehydrate Redis from the durable store after a restart.
	if err := phaseSvc.RecoverActiveGames(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active games (non-fatal)")
	}
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}

// openStore selects the embedded SQLite store for "sqlite:" URLs and
// PostgreSQL otherwise.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if path, ok := cfg.SQLitePath(); ok {
		log.Info().Str("path", path).Msg("Using SQLite store")
		return sqlite.Open(path)
	}
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("Using PostgreSQL store")
	return postgres.NewStore(db), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omega-realm/presence/internal/accrual"
	"github.com/omega-realm/presence/internal/auth"
	"github.com/omega-realm/presence/internal/config"
	"github.com/omega-realm/presence/internal/database"
	"github.com/omega-realm/presence/internal/engine"
	"github.com/omega-realm/presence/internal/handlers"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/presence"
	presenceredis "github.com/omega-realm/presence/internal/redis"
	"github.com/omega-realm/presence/internal/repositories"
	"github.com/omega-realm/presence/internal/repositories/memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "presence: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewJSON(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	log.Info(ctx, "connecting to redis")
	rdb, err := presenceredis.NewClient(ctx, presenceredis.LoadConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	tracker := presence.NewTracker()
	board := presenceredis.NewGroupBoard(rdb)
	eng := engine.Build(cfg.Engine, engine.Stores{
		Repos:    repos,
		Sessions: presenceredis.NewSessionStore(rdb),
		Groups:   board,
	}, tracker, time.Now, log)

	if _, err := eng.RecoverActiveSessions(ctx); err != nil {
		log.Warn(ctx, "startup recovery failed", "error", err)
	}

	go eng.RunReconciler(ctx, cfg.Engine.SyncInterval)
	go accrual.NewPruner(repos.Activity, cfg.Engine.ActivityRetention, time.Now, log).Run(ctx, cfg.Engine.PruneInterval)

	tokens := auth.NewTokenManager(cfg.Auth, time.Now)
	if cfg.Auth.OpsPasswordHash == "" {
		log.Warn(ctx, "OPS_PASSWORD_HASH not set, operator login disabled")
	}

	mux := handlers.Router{
		Auth:        handlers.NewAuthHandler(tokens, log),
		Presence:    handlers.NewPresenceHandler(tracker, eng, log),
		Sessions:    handlers.NewSessionHandler(eng),
		Leaderboard: handlers.NewLeaderboardHandler(board, log),
		Ops:         handlers.NewOpsHandler(eng, log),
		Tokens:      tokens,
	}.Mux()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", "port", cfg.Port, "storage", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore returns the durable repositories for the configured backend.
func openStore(ctx context.Context, cfg *config.Config, log logging.Logger) (*repositories.Set, func(), error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn(ctx, "using in-memory storage, accruals are lost on restart")
		return repositories.NewMemory(memory.New()), func() {}, nil
	}

	log.Info(ctx, "initializing database connection")
	db, err := database.NewConnection(ctx, database.LoadConfigFromEnv(), log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(ctx, db.DB); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repositories.NewPostgres(db.DB), func() { db.Close() }, nil
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

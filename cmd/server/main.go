// cmd/server/main.go
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

	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/handlers"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
	"github.com/jason-s-yu/lobbyd/internal/player"
	"github.com/jason-s-yu/lobbyd/internal/ratelimit"
	"github.com/jason-s-yu/lobbyd/internal/sequence"
	"github.com/jason-s-yu/lobbyd/internal/token"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		logrus.Errorf("lobbyd: %v", err)
		os.Exit(1)
	}
}

// run owns every resource so its defers complete before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := cfg.Logger()

	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	rdb, err := cache.Connect(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()

	store := cache.NewStore(rdb)
	seq := sequence.NewAllocator(store)
	orch := orchestrator.New(
		ratelimit.NewLimiter(store, cfg.MaxPendingPerIP, cfg.RateLimitWindow, logger),
		tokens,
		lobby.NewLobbyStore(store, seq),
		player.NewDirectory(store, seq),
		orchestrator.Settings{
			PendingTTL: cfg.PendingLobbyTTL,
			ActiveTTL:  cfg.ActiveLobbyTTL,
			ClosedTTL:  cfg.ClosedLobbyTTL,
			Server:     models.ServerConnection{Host: cfg.GameServerHost, Port: cfg.GameServerPort},
		},
		logger,
	)

	api := handlers.NewAPIServer(orch, cfg.GameServerToken, logger)
	api.TrustedProxies = cfg.TrustedProxies

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr)
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

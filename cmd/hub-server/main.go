// Command hub-server runs the CMMC integrations hub: a local service that
// connects to configured SaaS providers, pulls compliance evidence and
// exchanges OSCAL documents with the assessment record.
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

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/internal/config"
	"github.com/cmmc-tools/integrations-hub/internal/server"
	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/hub"
	"github.com/cmmc-tools/integrations-hub/pkg/providers"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
	"github.com/cmmc-tools/integrations-hub/pkg/store"
)

// Version is set at build time.
var Version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hub-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	reg := registry.New()
	credStore := credentials.NewStore()
	adapters := providers.BuildAll(reg, logger)
	h := hub.New(reg, credStore, st, adapters, logger)
	srv := server.New(h, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hub server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("version", Version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	// Session end: credentials must not outlive the process.
	h.ClearAll()
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return store.NewRedisStore(client), nil
	default:
		return store.OpenFileStore(cfg.StatePath)
	}
}

func initLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	switch level {
	case "debug":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.DebugLevel)
	case "warn":
		zapConfig.Level.SetLevel(zap.WarnLevel)
	default:
		zapConfig.Level.SetLevel(zap.InfoLevel)
	}
	zapConfig.InitialFields = map[string]interface{}{
		"service": "integrations-hub",
		"version": Version,
	}
	return zapConfig.Build()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/archive/internal/application"
	"github.com/JonMunkholm/archive/internal/config"
	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"cache_backend", cfg.Cache.Backend,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	app, err := application.Build(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := web.NewServer(web.Deps{
		Config:   cfg,
		Gateway:  app.Gateway,
		Importer: app.Importer,
		Staging:  app.Staging,
		Archiver: app.Archiver,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for an active import to finish (with timeout)
		if status := app.Importer.Status(); status.Active > 0 {
			slog.Info("waiting for import to complete", "active", status.Active)
			if err := app.Importer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("import did not complete in time and was cancelled", "error", err)
			} else {
				slog.Info("import completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

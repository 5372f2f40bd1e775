package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/archive/internal/application"
	"github.com/JonMunkholm/archive/internal/config"
	"github.com/JonMunkholm/archive/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "archivectl",
		Short:        "Manage the document archive from the command line",
		SilenceUsage: true,
	}

	root.AddCommand(newImportCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newClearCmd())
	return root
}

// withApp loads configuration, wires the application and runs fn.
// Logs go to stderr so stdout only carries command output.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *application.App) error) error {
	// Existing environment variables win over .env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := application.Build(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer app.Close()

	return fn(ctx, app)
}

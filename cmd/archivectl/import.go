package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/archive/internal/application"
	"github.com/JonMunkholm/archive/internal/filearchive"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/ingest"
)

type importOptions struct {
	file     string
	strategy string
	dryRun   bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a spreadsheet into the archive",
		Long: `Import reads an .xls, .xlsx or .csv file whose first row holds the headers
T/R, TALABNOMA RAQAMI, SHKAF, POLKA and TOPLAM, and creates one record per row.

Strategies:
  append    add every row to the archive
  replace   delete every existing record first, then add every row

The run stops at the first failed store call. Records written before the
failure are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := importer.ParseStrategy(opts.strategy)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				return runImport(ctx, app, cmd.OutOrStdout(), opts, strategy)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Spreadsheet to import (required)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "append", "append or replace")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and parse the file without writing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, app *application.App, out io.Writer, opts importOptions, strategy importer.Strategy) error {
	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	format, err := ingest.ValidateMediaType("", opts.file)
	if err != nil {
		return err
	}
	data, err := ingest.ReadAll(f, app.Config.Import.MaxFileSize)
	if err != nil {
		return err
	}
	result, err := ingest.Parse(data, format)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d rows (%s, checksum %s)\n", filepath.Base(opts.file), len(result.Rows), result.Format, result.Checksum)
	if opts.dryRun {
		return nil
	}

	if _, err := app.Archiver.Archive(ctx, filearchive.File{
		Name:        filepath.Base(opts.file),
		ContentType: format.ContentType(),
		Checksum:    result.Checksum,
		Data:        data,
	}); err != nil {
		slog.Warn("source file not archived", "error", err)
	}

	lastPercent := -1
	app.Progress.Observe(func(p importer.Progress) {
		if p.Phase == importer.PhaseRunning && p.Percent == lastPercent {
			return
		}
		lastPercent = p.Percent
		fmt.Fprintf(out, "%3d%% %s\n", p.Percent, p.Message)
	})

	if err := app.Importer.Run(ctx, result.Rows, strategy); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(out, "imported %d rows\n", len(result.Rows))
	return nil
}

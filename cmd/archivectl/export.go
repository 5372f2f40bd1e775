package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/archive/internal/application"
	"github.com/JonMunkholm/archive/internal/filter"
	"github.com/JonMunkholm/archive/internal/ingest"
	"github.com/JonMunkholm/archive/internal/schema"
)

type exportOptions struct {
	out     string
	format  string
	search  string
	filters map[string]string
}

func newExportCmd() *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archive records to a spreadsheet",
		Long: `Export writes the records matching the search and filter with the import
header row, so the file can be imported again.

Examples:
  archivectl export -o arxiv.xlsx
  archivectl export --format csv --search 2024- --filter docLocker=3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := exportFormat(opts)
			if err != nil {
				return err
			}
			state, err := exportFilter(opts)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				return runExport(ctx, app, cmd.OutOrStdout(), opts.out, format, state)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&opts.format, "format", "", "xlsx or csv (default: from the output extension, else xlsx)")
	cmd.Flags().StringVarP(&opts.search, "search", "q", "", "Match application numbers containing this text")
	cmd.Flags().StringToStringVar(&opts.filters, "filter", nil, "Field filters, e.g. docLocker=3,docShelf=A")

	return cmd
}

// exportFormat resolves the --format flag, falling back to the output
// file's extension.
func exportFormat(opts exportOptions) (ingest.Format, error) {
	raw := opts.format
	if raw == "" && opts.out != "-" {
		raw = strings.TrimPrefix(filepath.Ext(opts.out), ".")
	}
	if raw == "" {
		return ingest.FormatXLSX, nil
	}
	f, ok := ingest.ParseFormat(raw)
	if !ok || f == ingest.FormatXLS {
		return "", fmt.Errorf("unsupported export format %q (use xlsx or csv)", raw)
	}
	return f, nil
}

func exportFilter(opts exportOptions) (filter.State, error) {
	var fields schema.Fields
	for name, value := range opts.filters {
		field, ok := schema.ParseField(name)
		if !ok {
			return filter.State{}, fmt.Errorf("unknown field %q", name)
		}
		_ = fields.Set(field, value)
	}

	state := filter.Reduce(filter.State{}, filter.SetSearch{Term: opts.search})
	return filter.Reduce(state, filter.ApplyFilter{Filter: fields}), nil
}

func runExport(ctx context.Context, app *application.App, stdout io.Writer, out string, format ingest.Format, state filter.State) error {
	res := app.Gateway.List(ctx, filter.Queries(state))
	if !res.Success {
		return res.Err()
	}

	var buf bytes.Buffer
	if err := ingest.Export(&buf, format, res.Data); err != nil {
		return err
	}

	if out == "-" {
		_, err := buf.WriteTo(stdout)
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d records to %s\n", len(res.Data), out)
	return nil
}

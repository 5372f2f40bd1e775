package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/archive/internal/schema"
)

// ExportSheet is the sheet name used for xlsx exports.
const ExportSheet = "Arxiv"

// Export writes records with the import header row, so the output can be
// imported again unchanged. XLS is read-only; exporting to it is an error.
func Export(w io.Writer, format Format, records []schema.Record) error {
	switch format {
	case FormatXLSX:
		return exportXLSX(w, records)
	case FormatCSV:
		return exportCSV(w, records)
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
}

func exportCSV(w io.Writer, records []schema.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Headers()); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportXLSX(w io.Writer, records []schema.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ExportSheet); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}

	sw, err := f.NewStreamWriter(ExportSheet)
	if err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}

	if err := sw.SetRow("A1", toCells(schema.Headers())); err != nil {
		return fmt.Errorf("export xlsx: header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		if err := sw.SetRow(cell, toCells(r.Values())); err != nil {
			return fmt.Errorf("export xlsx: row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export xlsx: write: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

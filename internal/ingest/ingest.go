// Package ingest turns uploaded spreadsheets into candidate rows and writes
// records back out as spreadsheets.
//
// Parsing is a pure function over the file bytes: it returns the rows or a
// *ValidationError and never reports anything on its own. The caller decides
// how to show the error.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/archive/internal/schema"
)

// Format is a supported spreadsheet encoding.
type Format string

const (
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Media types accepted for import.
const (
	MediaTypeXLS  = "application/vnd.ms-excel"
	MediaTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypeCSV  = "text/csv"
)

var mediaTypes = map[string]Format{
	MediaTypeXLS:  FormatXLS,
	MediaTypeXLSX: FormatXLSX,
	MediaTypeCSV:  FormatCSV,
}

var extensions = map[string]Format{
	".xls":  FormatXLS,
	".xlsx": FormatXLSX,
	".csv":  FormatCSV,
}

// ContentType returns the media type for f.
func (f Format) ContentType() string {
	for mt, format := range mediaTypes {
		if format == f {
			return mt
		}
	}
	return "application/octet-stream"
}

// ParseFormat resolves "xls", "xlsx" or "csv".
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatXLS, FormatXLSX, FormatCSV:
		return f, true
	}
	return "", false
}

// ValidationError reports why an upload cannot be imported.
type ValidationError struct {
	Kind    ValidationKind
	Missing []string // missing headers, for KindMissingHeaders
	Detail  string
	Err     error
}

// ValidationKind classifies a ValidationError.
type ValidationKind int

const (
	KindMediaType ValidationKind = iota
	KindMissingHeaders
	KindNoData
	KindUnreadable
	KindTooLarge
)

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMediaType:
		return fmt.Sprintf("unsupported media type %q", e.Detail)
	case KindMissingHeaders:
		return "missing required column(s): " + strings.Join(e.Missing, ", ")
	case KindNoData:
		return "no data rows below the header row"
	case KindTooLarge:
		return "file too large: " + e.Detail
	default:
		if e.Err != nil {
			return "read spreadsheet: " + e.Err.Error()
		}
		return "read spreadsheet: " + e.Detail
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateMediaType checks an upload's declared media type against the
// allow-list. Browsers send an empty or generic type for some files; in that
// case the filename extension decides.
func ValidateMediaType(contentType, filename string) (Format, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if f, ok := mediaTypes[mt]; ok {
			return f, nil
		}
	}

	if contentType == "" || mt == "application/octet-stream" {
		if f, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
			return f, nil
		}
	}

	detail := contentType
	if detail == "" {
		detail = filepath.Ext(filename)
	}
	return "", &ValidationError{Kind: KindMediaType, Detail: detail}
}

// Result is a successfully ingested upload.
type Result struct {
	Format   Format
	Headers  []string // normalized header row as found in the file
	Rows     []schema.CandidateRow
	Checksum string // xxhash64 of the raw bytes, hex
	Size     int
}

// Parse reads the first sheet of data, checks the header row and maps every
// data row positionally onto the five fields. Missing cells become "".
// Data rows with no content at all are skipped.
func Parse(data []byte, format Format) (Result, error) {
	sheet, err := readSheet(data, format)
	if err != nil {
		return Result{}, &ValidationError{Kind: KindUnreadable, Err: err}
	}
	if len(sheet) == 0 {
		return Result{}, &ValidationError{Kind: KindMissingHeaders, Missing: schema.Headers()}
	}

	// Row 0 is the header row even when it is blank.
	headers := normalizeHeaders(sheet[0])
	if missing := missingHeaders(headers); len(missing) > 0 {
		return Result{}, &ValidationError{Kind: KindMissingHeaders, Missing: missing}
	}

	dataRows := dropBlankRows(sheet[1:])
	if len(dataRows) == 0 {
		return Result{}, &ValidationError{Kind: KindNoData}
	}

	rows := make([]schema.CandidateRow, len(dataRows))
	for i, cells := range dataRows {
		rows[i] = schema.FromValues(cells)
	}

	return Result{
		Format:   format,
		Headers:  headers,
		Rows:     rows,
		Checksum: Checksum(data),
		Size:     len(data),
	}, nil
}

// ReadAll reads r up to limit bytes. Larger inputs fail with KindTooLarge.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ValidationError{Kind: KindUnreadable, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &ValidationError{Kind: KindTooLarge, Detail: "limit is " + strconv.FormatInt(limit, 10) + " bytes"}
	}
	return data, nil
}

// Checksum returns the hex xxhash64 of data.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

func normalizeHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.ToUpper(strings.TrimSpace(h))
	}
	return out
}

func missingHeaders(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, want := range schema.Headers() {
		if !present[want] {
			missing = append(missing, want)
		}
	}
	return missing
}

func dropBlankRows(sheet [][]string) [][]string {
	out := sheet[:0:0]
	for _, row := range sheet {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func readSheet(data []byte, format Format) ([][]string, error) {
	switch format {
	case FormatXLSX:
		return readXLSX(data)
	case FormatXLS:
		return readXLS(data)
	case FormatCSV:
		return readCSV(data)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// readXLS reads the first sheet of a BIFF workbook. The decoder panics on
// some malformed files, so panics are turned into errors.
func readXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("corrupt xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(cleanText(bytes.NewReader(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/archive/internal/schema"
)

// ============================================================================
// Helpers
// ============================================================================

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func validationKind(t *testing.T, err error) ValidationKind {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %T: %v", err, err)
	return ve.Kind
}

// ============================================================================
// Media type
// ============================================================================

func TestValidateMediaType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		want        Format
		wantErr     bool
	}{
		{"xlsx", MediaTypeXLSX, "a.xlsx", FormatXLSX, false},
		{"xls", MediaTypeXLS, "a.xls", FormatXLS, false},
		{"csv", MediaTypeCSV, "a.csv", FormatCSV, false},
		{"csv with charset", "text/csv; charset=utf-8", "a.csv", FormatCSV, false},
		{"empty type uses extension", "", "ARCHIVE.XLSX", FormatXLSX, false},
		{"octet stream uses extension", "application/octet-stream", "a.csv", FormatCSV, false},
		{"pdf rejected", "application/pdf", "a.xlsx", "", true},
		{"octet stream unknown extension", "application/octet-stream", "a.txt", "", true},
		{"plain text rejected", "text/plain", "a.csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMediaType(tt.contentType, tt.filename)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindMediaType, validationKind(t, err))
				assert.Contains(t, err.Error(), "unsupported media type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat(" XLSX ")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	_, ok = ParseFormat("pdf")
	assert.False(t, ok)

	assert.Equal(t, MediaTypeCSV, FormatCSV.ContentType())
}

// ============================================================================
// Parse
// ============================================================================

func TestParse_CSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRows []schema.CandidateRow
		wantKind *ValidationKind
		missing  []string
	}{
		{
			name:  "exact headers",
			input: "T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n1,APP-1,A,2,C1\n2,APP-2,B,3,C2\n",
			wantRows: []schema.CandidateRow{
				{SerialNumber: "1", ApplicationNumber: "APP-1", Locker: "A", Shelf: "2", Collection: "C1"},
				{SerialNumber: "2", ApplicationNumber: "APP-2", Locker: "B", Shelf: "3", Collection: "C2"},
			},
		},
		{
			name:  "lower case reordered headers with extras",
			input: "toplam , polka,shkaf,Talabnoma Raqami,t/r,NOTE\nx,y,z\n",
			wantRows: []schema.CandidateRow{
				{SerialNumber: "x", ApplicationNumber: "y", Locker: "z"},
			},
		},
		{
			name:  "short rows default to empty",
			input: "T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n7\n8,A\n",
			wantRows: []schema.CandidateRow{
				{SerialNumber: "7"},
				{SerialNumber: "8", ApplicationNumber: "A"},
			},
		},
		{
			name:  "BOM is stripped before header check",
			input: "\xEF\xBB\xBFT/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n1,2,3,4,5\n",
			wantRows: []schema.CandidateRow{
				{SerialNumber: "1", ApplicationNumber: "2", Locker: "3", Shelf: "4", Collection: "5"},
			},
		},
		{
			name:  "blank rows skipped",
			input: "T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n,,,,\n1,2,3,4,5\n\n",
			wantRows: []schema.CandidateRow{
				{SerialNumber: "1", ApplicationNumber: "2", Locker: "3", Shelf: "4", Collection: "5"},
			},
		},
		{
			name:     "blank first row is the header row",
			input:    ",,,,\nT/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n1,2,3,4,5\n",
			wantKind: ptr(KindMissingHeaders),
			missing:  schema.Headers(),
		},
		{
			name:     "missing POLKA",
			input:    "T/R,TALABNOMA RAQAMI,SHKAF,TOPLAM,EXTRA\n1,2,3,4,5\n",
			wantKind: ptr(KindMissingHeaders),
			missing:  []string{"POLKA"},
		},
		{
			name:     "header only",
			input:    "T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n",
			wantKind: ptr(KindNoData),
		},
		{
			name:     "empty file",
			input:    "",
			wantKind: ptr(KindMissingHeaders),
			missing:  schema.Headers(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse([]byte(tt.input), FormatCSV)
			if tt.wantKind != nil {
				require.Error(t, err)
				assert.Equal(t, *tt.wantKind, validationKind(t, err))
				assert.Empty(t, res.Rows)
				if tt.missing != nil {
					var ve *ValidationError
					require.ErrorAs(t, err, &ve)
					assert.Equal(t, tt.missing, ve.Missing)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, res.Rows)
			assert.Equal(t, FormatCSV, res.Format)
			assert.NotEmpty(t, res.Checksum)
			assert.Equal(t, len(tt.input), res.Size)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestParse_XLSX(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"T/R", "Talabnoma raqami", "Shkaf", "Polka", "Toplam"},
		{1, "APP-1", "A", 2, "C1"},
		{2, "APP-2"},
	})

	res, err := Parse(data, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, schema.CandidateRow{SerialNumber: "1", ApplicationNumber: "APP-1", Locker: "A", Shelf: "2", Collection: "C1"}, res.Rows[0])
	assert.Equal(t, schema.CandidateRow{SerialNumber: "2", ApplicationNumber: "APP-2"}, res.Rows[1])
	assert.Equal(t, []string{"T/R", "TALABNOMA RAQAMI", "SHKAF", "POLKA", "TOPLAM"}, res.Headers)
}

func TestParse_XLSXMissingHeader(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"T/R", "TALABNOMA RAQAMI", "SHKAF", "TOPLAM"},
		{1, "APP-1", "A", "C1"},
	})

	_, err := Parse(data, FormatXLSX)
	require.Error(t, err)
	assert.Equal(t, KindMissingHeaders, validationKind(t, err))
	assert.Contains(t, err.Error(), "POLKA")
}

func TestParse_Unreadable(t *testing.T) {
	for _, format := range []Format{FormatXLSX, FormatXLS} {
		t.Run(string(format), func(t *testing.T) {
			_, err := Parse([]byte("definitely not a workbook"), format)
			require.Error(t, err)
			assert.Equal(t, KindUnreadable, validationKind(t, err))
			assert.Contains(t, err.Error(), "read spreadsheet")
		})
	}
}

func TestParse_ChecksumIsStable(t *testing.T) {
	input := []byte("T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n1,2,3,4,5\n")
	a, err := Parse(input, FormatCSV)
	require.NoError(t, err)
	b, err := Parse(append([]byte(nil), input...), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, a.Checksum, b.Checksum)
	assert.Equal(t, Checksum(input), a.Checksum)
	assert.NotEqual(t, Checksum([]byte("other")), a.Checksum)
}

func TestReadAll(t *testing.T) {
	data, err := ReadAll(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = ReadAll(strings.NewReader("123456"), 5)
	require.Error(t, err)
	assert.Equal(t, KindTooLarge, validationKind(t, err))
	assert.True(t, IsValidationError(err))
}

// ============================================================================
// Export
// ============================================================================

func sampleRecords() []schema.Record {
	return []schema.Record{
		{Meta: schema.Meta{ID: "a"}, Fields: schema.Fields{SerialNumber: "1", ApplicationNumber: "APP-1", Locker: "A", Shelf: "2", Collection: "C1"}},
		{Meta: schema.Meta{ID: "b"}, Fields: schema.Fields{SerialNumber: "2", ApplicationNumber: "APP, 2", Locker: "B", Shelf: "3", Collection: "C2"}},
	}
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, format, sampleRecords()))

			res, err := Parse(buf.Bytes(), format)
			require.NoError(t, err)
			require.Len(t, res.Rows, 2)
			assert.Equal(t, sampleRecords()[0].Fields, res.Rows[0])
			assert.Equal(t, sampleRecords()[1].Fields, res.Rows[1])
		})
	}
}

func TestExport_CSVHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatCSV, nil))
	assert.Equal(t, "T/R,TALABNOMA RAQAMI,SHKAF,POLKA,TOPLAM\n", buf.String())
}

func TestExport_XLSXSheetName(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatXLSX, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{ExportSheet}, f.GetSheetList())
}

func TestExport_XLSUnsupported(t *testing.T) {
	err := Export(&bytes.Buffer{}, FormatXLS, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

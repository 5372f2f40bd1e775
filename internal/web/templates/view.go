// Package templates renders the archive pages. The components are written
// in .templ files; the _templ.go files are generated from them.
package templates

//go:generate templ generate

import (
	"net/url"

	"github.com/JonMunkholm/archive/internal/filter"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/schema"
)

// ArchivePageData is everything the archive page shows.
type ArchivePageData struct {
	Filter   filter.State
	Records  []schema.Record
	Total    int
	Error    string
	Progress importer.Progress
}

var exportFormats = []string{"xlsx", "csv"}

// filterSpecs returns the field specs the structured filter may constrain,
// in display order.
func filterSpecs() []schema.FieldSpec {
	out := make([]schema.FieldSpec, 0, len(schema.FilterFields))
	for _, spec := range schema.FieldSpecs {
		for _, f := range schema.FilterFields {
			if f == spec.Field {
				out = append(out, spec)
				break
			}
		}
	}
	return out
}

// exportURL keeps the active search and filter on an export link.
func exportURL(s filter.State, format string) string {
	v := s.Values()
	v.Set("format", format)
	return "/api/export?" + v.Encode()
}

// resetURL clears the structured filter but keeps the search term.
func resetURL(s filter.State) string {
	v := url.Values{}
	if s.Search != "" {
		v.Set(filter.SearchParam, s.Search)
	}
	return "/archive?" + v.Encode()
}

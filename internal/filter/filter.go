// Package filter holds the listing's search and filter state and turns it
// into store queries. State is a value; every change goes through Reduce.
package filter

import (
	"net/url"
	"strings"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

// SearchParam is the URL parameter carrying the free-text search term.
const SearchParam = "q"

// State is the current search term plus the structured filter.
type State struct {
	Search string        `json:"search"`
	Filter schema.Fields `json:"filter"`
}

// Action is a change to State.
type Action interface {
	action()
}

// SetSearch replaces the application-number search term.
type SetSearch struct {
	Term string
}

// ApplyFilter replaces the structured filter.
type ApplyFilter struct {
	Filter schema.Fields
}

// ClearFilter drops the structured filter and keeps the search term.
type ClearFilter struct{}

func (SetSearch) action()   {}
func (ApplyFilter) action() {}
func (ClearFilter) action() {}

// Reduce returns the state after a.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetSearch:
		s.Search = strings.TrimSpace(a.Term)
	case ApplyFilter:
		s.Filter = a.Filter.Trimmed()
	case ClearFilter:
		s.Filter = schema.Fields{}
	}
	return s
}

// Active reports whether any filter field is set.
func (s State) Active() bool {
	return s.Filter != schema.Fields{}
}

// Queries builds the store queries for s: the search term first, then one
// search per non-empty filter field in column order. An empty state lists
// everything.
func Queries(s State) []string {
	var queries []string
	if s.Search != "" {
		queries = append(queries, store.Search(string(schema.FieldApplicationNumber), s.Search))
	}
	for _, spec := range schema.FieldSpecs {
		if v := s.Filter.Get(spec.Field); v != "" {
			queries = append(queries, store.Search(string(spec.Field), v))
		}
	}
	return queries
}

// FromValues reads a state from URL parameters: q for the search term and
// the field attribute names for the filter.
func FromValues(v url.Values) State {
	var filter schema.Fields
	for _, spec := range schema.FieldSpecs {
		_ = filter.Set(spec.Field, v.Get(string(spec.Field)))
	}
	s := Reduce(State{}, SetSearch{Term: v.Get(SearchParam)})
	return Reduce(s, ApplyFilter{Filter: filter})
}

// Values is the inverse of FromValues. Empty fields are omitted.
func (s State) Values() url.Values {
	v := url.Values{}
	if s.Search != "" {
		v.Set(SearchParam, s.Search)
	}
	for _, spec := range schema.FieldSpecs {
		if val := s.Filter.Get(spec.Field); val != "" {
			v.Set(string(spec.Field), val)
		}
	}
	return v
}

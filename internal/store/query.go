package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/archive/internal/schema"
)

// Query methods understood by every backend.
const (
	MethodSearch = "search"
	MethodEqual  = "equal"
	MethodLimit  = "limit"
	MethodOffset = "offset"
)

// Query is the decoded form of one encoded query string.
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func encode(q Query) string {
	data, _ := json.Marshal(q)
	return string(data)
}

// Search matches documents whose attribute contains term, case-insensitively.
func Search(attribute, term string) string {
	return encode(Query{Method: MethodSearch, Attribute: attribute, Values: []any{term}})
}

// Equal matches documents whose attribute equals one of values.
func Equal(attribute string, values ...string) string {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return encode(Query{Method: MethodEqual, Attribute: attribute, Values: vs})
}

// Limit caps the number of returned documents.
func Limit(n int) string {
	return encode(Query{Method: MethodLimit, Values: []any{n}})
}

// Offset skips the first n matching documents.
func Offset(n int) string {
	return encode(Query{Method: MethodOffset, Values: []any{n}})
}

// ParseQuery decodes one query string.
func ParseQuery(s string) (Query, error) {
	var q Query
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return Query{}, fmt.Errorf("invalid query %q: %w", s, err)
	}
	return q, nil
}

// Condition is one field constraint of a Plan.
type Condition struct {
	Field  schema.Field
	Values []string
}

// Plan is a validated, backend-neutral list request.
type Plan struct {
	Search []Condition // each has exactly one value
	Equal  []Condition
	Limit  int // 0 means no limit
	Offset int
}

// BuildPlan decodes and validates queries. Unknown methods or attributes
// fail with an "invalid query" error.
func BuildPlan(queries []string) (Plan, error) {
	var p Plan
	for _, raw := range queries {
		q, err := ParseQuery(raw)
		if err != nil {
			return Plan{}, err
		}

		switch q.Method {
		case MethodSearch, MethodEqual:
			field, ok := schema.ParseField(q.Attribute)
			if !ok {
				return Plan{}, fmt.Errorf("invalid query: unknown attribute %q", q.Attribute)
			}
			values, err := stringValues(q.Values)
			if err != nil {
				return Plan{}, err
			}
			if q.Method == MethodSearch {
				if len(values) != 1 {
					return Plan{}, fmt.Errorf("invalid query: search on %s needs exactly one value", q.Attribute)
				}
				p.Search = append(p.Search, Condition{Field: field, Values: values})
			} else {
				if len(values) == 0 {
					return Plan{}, fmt.Errorf("invalid query: equal on %s needs a value", q.Attribute)
				}
				p.Equal = append(p.Equal, Condition{Field: field, Values: values})
			}

		case MethodLimit, MethodOffset:
			n, err := intValue(q.Values)
			if err != nil {
				return Plan{}, err
			}
			if q.Method == MethodLimit {
				p.Limit = n
			} else {
				p.Offset = n
			}

		default:
			return Plan{}, fmt.Errorf("invalid query: unknown method %q", q.Method)
		}
	}
	return p, nil
}

func stringValues(values []any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid query: value %v is not text", v)
		}
		out[i] = s
	}
	return out, nil
}

func intValue(values []any) (int, error) {
	if len(values) != 1 {
		return 0, fmt.Errorf("invalid query: expected one numeric value")
	}
	f, ok := values[0].(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid query: %v is not a non-negative integer", values[0])
	}
	return int(f), nil
}

// Match reports whether f satisfies every search and equality condition.
func (p Plan) Match(f schema.Fields) bool {
	for _, c := range p.Search {
		if !strings.Contains(strings.ToLower(f.Get(c.Field)), strings.ToLower(c.Values[0])) {
			return false
		}
	}
	for _, c := range p.Equal {
		v := f.Get(c.Field)
		found := false
		for _, want := range c.Values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply filters, orders and pages records in memory. Backends that cannot
// push the plan down to the database use it after fetching candidates.
func (p Plan) Apply(records []schema.Record) Page {
	matched := make([]schema.Record, 0, len(records))
	for _, r := range records {
		if p.Match(r.Fields) {
			matched = append(matched, r)
		}
	}
	SortRecords(matched)

	total := len(matched)
	start := min(p.Offset, total)
	end := total
	if p.Limit > 0 {
		end = min(start+p.Limit, total)
	}
	return Page{Documents: matched[start:end], Total: total}
}

// SortRecords orders records by creation time, then id.
func SortRecords(records []schema.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

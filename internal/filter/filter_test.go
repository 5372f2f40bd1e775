package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

func TestReduce(t *testing.T) {
	start := State{Search: "A-1", Filter: schema.Fields{Locker: "3"}}

	tests := []struct {
		name   string
		action Action
		want   State
	}{
		{
			name:   "set search trims",
			action: SetSearch{Term: "  B-2 "},
			want:   State{Search: "B-2", Filter: schema.Fields{Locker: "3"}},
		},
		{
			name:   "empty search clears term",
			action: SetSearch{Term: ""},
			want:   State{Filter: schema.Fields{Locker: "3"}},
		},
		{
			name:   "apply filter replaces",
			action: ApplyFilter{Filter: schema.Fields{Shelf: " 2 "}},
			want:   State{Search: "A-1", Filter: schema.Fields{Shelf: "2"}},
		},
		{
			name:   "clear filter keeps search",
			action: ClearFilter{},
			want:   State{Search: "A-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(start, tt.action))
		})
	}

	assert.Equal(t, "A-1", start.Search, "input state is not modified")
}

func TestQueries(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  []string
	}{
		{name: "empty lists everything", state: State{}, want: nil},
		{
			name:  "search only",
			state: State{Search: "77"},
			want:  []string{store.Search("docApplicationNumber", "77")},
		},
		{
			name:  "filter fields in column order",
			state: State{Filter: schema.Fields{Collection: "C", SerialNumber: "5", Shelf: "1"}},
			want: []string{
				store.Search("docSerialNumber", "5"),
				store.Search("docShelf", "1"),
				store.Search("docCollection", "C"),
			},
		},
		{
			name:  "search comes first",
			state: State{Search: "77", Filter: schema.Fields{Locker: "L"}},
			want: []string{
				store.Search("docApplicationNumber", "77"),
				store.Search("docLocker", "L"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Queries(tt.state))
		})
	}
}

func TestActive(t *testing.T) {
	assert.False(t, State{Search: "x"}.Active())
	assert.True(t, State{Filter: schema.Fields{Shelf: "1"}}.Active())
}

func TestFromValues(t *testing.T) {
	v := url.Values{}
	v.Set("q", " 123 ")
	v.Set("docLocker", "A")
	v.Set("docShelf", "")
	v.Set("unknown", "ignored")

	s := FromValues(v)
	assert.Equal(t, State{Search: "123", Filter: schema.Fields{Locker: "A"}}, s)

	assert.Equal(t, "docLocker=A&q=123", s.Values().Encode())
}

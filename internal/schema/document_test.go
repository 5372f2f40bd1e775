package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	assert.Equal(t, []string{"T/R", "TALABNOMA RAQAMI", "SHKAF", "POLKA", "TOPLAM"}, Headers())
}

func TestFromValues(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  Fields
	}{
		{
			name:  "full row",
			cells: []string{"1", "A-100", "3", "2", "K"},
			want:  Fields{SerialNumber: "1", ApplicationNumber: "A-100", Locker: "3", Shelf: "2", Collection: "K"},
		},
		{
			name:  "short row defaults to empty",
			cells: []string{"7", "B-7"},
			want:  Fields{SerialNumber: "7", ApplicationNumber: "B-7"},
		},
		{
			name:  "extra cells ignored",
			cells: []string{"1", "2", "3", "4", "5", "6"},
			want:  Fields{SerialNumber: "1", ApplicationNumber: "2", Locker: "3", Shelf: "4", Collection: "5"},
		},
		{
			name: "nil row",
			want: Fields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromValues(tt.cells))
		})
	}
}

func TestFields_ValuesRoundTrip(t *testing.T) {
	f := Fields{SerialNumber: "1", ApplicationNumber: "A", Locker: "L", Shelf: "S", Collection: "C"}
	assert.Equal(t, f, FromValues(f.Values()))
}

func TestFields_Set(t *testing.T) {
	var f Fields
	require.NoError(t, f.Set(FieldShelf, "4"))
	assert.Equal(t, "4", f.Shelf)

	err := f.Set(Field("docColor"), "red")
	assert.Error(t, err)
}

func TestParseField(t *testing.T) {
	f, ok := ParseField("docLocker")
	assert.True(t, ok)
	assert.Equal(t, FieldLocker, f)

	_, ok = ParseField("$id")
	assert.False(t, ok)
}

func TestFields_Validate(t *testing.T) {
	valid := Fields{SerialNumber: "1", ApplicationNumber: "A", Locker: "L", Shelf: "S", Collection: "C"}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Locker = "  "
	missing.Collection = ""

	err := missing.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, FieldLocker, verrs[0].Field)
	assert.Equal(t, "Shkafni kiriting", verrs[0].Message)
	assert.Equal(t, FieldCollection, verrs[1].Field)
	assert.Contains(t, err.Error(), "required field")
}

func TestRecord_JSON(t *testing.T) {
	rec := Record{
		Meta:   Meta{ID: "abc", DatabaseID: "db", CollectionID: "col"},
		Fields: Fields{SerialNumber: "1", ApplicationNumber: "A", Locker: "L", Shelf: "S", Collection: "C"},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"$id", "$databaseId", "$collectionId", "$createdAt", "docSerialNumber", "docCollection"} {
		assert.Contains(t, raw, key)
	}
}

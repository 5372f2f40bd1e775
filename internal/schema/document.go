// Package schema defines the archive record shape shared by every layer:
// the five location fields, the store metadata, and the spreadsheet columns
// that map onto them.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Fields holds the five descriptive fields of an archived document.
// JSON names follow the document store's attribute names.
type Fields struct {
	SerialNumber      string `json:"docSerialNumber" dynamodbav:"docSerialNumber"`
	ApplicationNumber string `json:"docApplicationNumber" dynamodbav:"docApplicationNumber"`
	Locker            string `json:"docLocker" dynamodbav:"docLocker"`
	Shelf             string `json:"docShelf" dynamodbav:"docShelf"`
	Collection        string `json:"docCollection" dynamodbav:"docCollection"`
}

// Meta is assigned by the store and never accepted from clients.
type Meta struct {
	ID           string    `json:"$id" dynamodbav:"id"`
	Permissions  []string  `json:"$permissions" dynamodbav:"permissions"`
	CreatedAt    time.Time `json:"$createdAt" dynamodbav:"createdAt"`
	UpdatedAt    time.Time `json:"$updatedAt" dynamodbav:"updatedAt"`
	DatabaseID   string    `json:"$databaseId" dynamodbav:"databaseId"`
	CollectionID string    `json:"$collectionId" dynamodbav:"collectionId"`
}

// Record is a persisted archive document.
type Record struct {
	Meta
	Fields
}

// CandidateRow is a row read from a spreadsheet or typed into the staging grid.
// It has no identity until the store accepts it.
type CandidateRow = Fields

// Field identifies one of the five descriptive fields.
type Field string

const (
	FieldSerialNumber      Field = "docSerialNumber"
	FieldApplicationNumber Field = "docApplicationNumber"
	FieldLocker            Field = "docLocker"
	FieldShelf             Field = "docShelf"
	FieldCollection        Field = "docCollection"
)

// FieldSpec describes how a field appears in spreadsheets, the grid and the form.
type FieldSpec struct {
	Field    Field
	Header   string // Spreadsheet header, compared upper-cased
	Label    string // Grid column title
	Required string // Message shown when the form value is empty
}

// FieldSpecs lists the fields in spreadsheet column order (columns 0-4).
var FieldSpecs = []FieldSpec{
	{Field: FieldSerialNumber, Header: "T/R", Label: "T/R", Required: "T/R kiriting"},
	{Field: FieldApplicationNumber, Header: "TALABNOMA RAQAMI", Label: "Talabnoma raqami", Required: "Talabnoma raqamini kiriting"},
	{Field: FieldLocker, Header: "SHKAF", Label: "Shkaf", Required: "Shkafni kiriting"},
	{Field: FieldShelf, Header: "POLKA", Label: "Polka", Required: "Polkani kiriting"},
	{Field: FieldCollection, Header: "TOPLAM", Label: "To'plam", Required: "To'plamni kiriting"},
}

// Headers returns the spreadsheet header row in column order.
func Headers() []string {
	out := make([]string, len(FieldSpecs))
	for i, spec := range FieldSpecs {
		out[i] = spec.Header
	}
	return out
}

// FilterFields are the fields the structured filter may constrain.
// Application number is searched separately through the free-text box.
var FilterFields = []Field{FieldSerialNumber, FieldLocker, FieldShelf, FieldCollection}

// ParseField resolves a JSON attribute name to a Field.
func ParseField(name string) (Field, bool) {
	for _, spec := range FieldSpecs {
		if string(spec.Field) == name {
			return spec.Field, true
		}
	}
	return "", false
}

// Get returns the value of f.
func (f Fields) Get(field Field) string {
	switch field {
	case FieldSerialNumber:
		return f.SerialNumber
	case FieldApplicationNumber:
		return f.ApplicationNumber
	case FieldLocker:
		return f.Locker
	case FieldShelf:
		return f.Shelf
	case FieldCollection:
		return f.Collection
	}
	return ""
}

// Set assigns value to field. Unknown fields are an error.
func (f *Fields) Set(field Field, value string) error {
	switch field {
	case FieldSerialNumber:
		f.SerialNumber = value
	case FieldApplicationNumber:
		f.ApplicationNumber = value
	case FieldLocker:
		f.Locker = value
	case FieldShelf:
		f.Shelf = value
	case FieldCollection:
		f.Collection = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

// Values returns the fields in column order.
func (f Fields) Values() []string {
	out := make([]string, len(FieldSpecs))
	for i, spec := range FieldSpecs {
		out[i] = f.Get(spec.Field)
	}
	return out
}

// FromValues maps cells positionally onto the five fields.
// Missing cells become the empty string.
func FromValues(cells []string) Fields {
	var f Fields
	for i, spec := range FieldSpecs {
		if i < len(cells) {
			_ = f.Set(spec.Field, cells[i])
		}
	}
	return f
}

// FieldError reports an empty required field.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("required field %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failing field of one record.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks that all five fields are non-empty after trimming.
// It is applied to form input; spreadsheet rows are not validated per cell.
func (f Fields) Validate() error {
	var errs ValidationErrors
	for _, spec := range FieldSpecs {
		if strings.TrimSpace(f.Get(spec.Field)) == "" {
			errs = append(errs, FieldError{Field: spec.Field, Message: spec.Required})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f Fields) Trimmed() Fields {
	var out Fields
	for _, spec := range FieldSpecs {
		_ = out.Set(spec.Field, strings.TrimSpace(f.Get(spec.Field)))
	}
	return out
}

// Package store defines the document store the archive persists into and
// the query encoding shared by all backends.
//
// The store is schemaless from the archive's point of view: it assigns
// metadata, stores the five fields and answers list queries. It does not
// enforce that fields are present; callers validate before writing.
package store

import (
	"context"
	"errors"

	"github.com/JonMunkholm/archive/internal/schema"
)

// ErrNotFound is returned when a document id does not exist in the collection.
var ErrNotFound = errors.New("record not found")

// Page is one answer to ListDocuments. Total counts every document matching
// the search and equality conditions, ignoring limit and offset.
type Page struct {
	Documents []schema.Record
	Total     int
}

// DocumentStore is the remote document database seen through its client.
type DocumentStore interface {
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries []string) (Page, error)
	GetDocument(ctx context.Context, databaseID, collectionID, id string) (schema.Record, error)
	CreateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error)
	UpdateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error)
	DeleteDocument(ctx context.Context, databaseID, collectionID, id string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// Name identifies the backend in logs and readiness output.
	Name() string
}

// DefaultPermissions is attached to every new document.
var DefaultPermissions = []string{`read("any")`}

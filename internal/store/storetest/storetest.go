// Package storetest holds behaviour tests every DocumentStore backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

const (
	databaseID   = "archive"
	collectionID = "documents"
)

func fields(serial, app, locker, shelf, coll string) schema.Fields {
	return schema.Fields{SerialNumber: serial, ApplicationNumber: app, Locker: locker, Shelf: shelf, Collection: coll}
}

// Run exercises s. newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) store.DocumentStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateDocument(ctx, databaseID, collectionID, "id-1", fields("1", "A-1", "L1", "S1", "C1"))
		require.NoError(t, err)
		assert.Equal(t, "id-1", created.ID)
		assert.Equal(t, databaseID, created.DatabaseID)
		assert.Equal(t, collectionID, created.CollectionID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.GetDocument(ctx, databaseID, collectionID, "id-1")
		require.NoError(t, err)
		assert.Equal(t, created.Fields, got.Fields)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetDocument(context.Background(), databaseID, collectionID, "nope")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("Update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateDocument(ctx, databaseID, collectionID, "id-1", fields("1", "A-1", "L1", "S1", "C1"))
		require.NoError(t, err)

		updated, err := s.UpdateDocument(ctx, databaseID, collectionID, "id-1", fields("1", "A-1", "L9", "S9", "C9"))
		require.NoError(t, err)
		assert.Equal(t, "L9", updated.Locker)

		_, err = s.UpdateDocument(ctx, databaseID, collectionID, "missing", fields("x", "x", "x", "x", "x"))
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateDocument(ctx, databaseID, collectionID, "id-1", fields("1", "A-1", "L1", "S1", "C1"))
		require.NoError(t, err)
		require.NoError(t, s.DeleteDocument(ctx, databaseID, collectionID, "id-1"))

		err = s.DeleteDocument(ctx, databaseID, collectionID, "id-1")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("ListSearchAndPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 1; i <= 5; i++ {
			locker := "L1"
			if i%2 == 0 {
				locker = "L2"
			}
			_, err := s.CreateDocument(ctx, databaseID, collectionID, fmt.Sprintf("id-%d", i),
				fields(fmt.Sprint(i), fmt.Sprintf("APP-%d", i*10), locker, "S", "C"))
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		all, err := s.ListDocuments(ctx, databaseID, collectionID, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, all.Total)
		require.Len(t, all.Documents, 5)
		assert.Equal(t, "id-1", all.Documents[0].ID)

		found, err := s.ListDocuments(ctx, databaseID, collectionID, []string{
			store.Search(string(schema.FieldApplicationNumber), "app-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, found.Total)

		lockers, err := s.ListDocuments(ctx, databaseID, collectionID, []string{
			store.Search(string(schema.FieldLocker), "L2"),
			store.Limit(1),
			store.Offset(1),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, lockers.Total)
		require.Len(t, lockers.Documents, 1)
		assert.Equal(t, "id-4", lockers.Documents[0].ID)

		equal, err := s.ListDocuments(ctx, databaseID, collectionID, []string{
			store.Equal(string(schema.FieldSerialNumber), "3", "5"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, equal.Total)
	})

	t.Run("ListInvalidQuery", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListDocuments(context.Background(), databaseID, collectionID, []string{"{not json"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid query")
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateDocument(ctx, databaseID, "other", "id-1", fields("1", "A", "L", "S", "C"))
		require.NoError(t, err)

		page, err := s.ListDocuments(ctx, databaseID, collectionID, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, page.Total)
	})
}

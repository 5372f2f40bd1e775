package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store/memory"
)

func TestClearArchive(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	gw := gateway.New(st, "db", "docs", gateway.Options{})
	for _, n := range []string{"1", "2", "3"} {
		res := gw.Create(ctx, schema.Fields{SerialNumber: n, ApplicationNumber: "A" + n, Locker: "L", Shelf: "S", Collection: "C"})
		require.True(t, res.Success)
	}

	_, err := ClearArchive(ctx, gw, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, 3, st.Len("db", "docs"), "nothing deleted without confirmation")

	res, err := ClearArchive(ctx, gw, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 0, st.Len("db", "docs"))
}

type failingClearer struct{ err error }

func (f failingClearer) ClearAll(context.Context) gateway.BatchResult {
	return gateway.BatchResult{Attempted: 2, Succeeded: 1, Failures: []gateway.ItemFailure{{Index: 1, ID: "x", Error: f.err.Error()}}}
}

func TestClearArchive_Failure(t *testing.T) {
	res, err := ClearArchive(context.Background(), failingClearer{err: assert.AnError}, true)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Succeeded)
	assert.EqualError(t, err, "clear archive: 1 of 2 deletes failed")
}

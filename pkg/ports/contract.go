package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RecordStore implementation
// adheres to the defined interface contract. Stores that also implement Splicer get
// the in-place removal cases.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	surface := "contract-surface-" + time.Now().Format("20060102150405.000000")
	tool := domain.DefaultTool

	seed := func(t *testing.T, n int) {
		t.Helper()
		require.NoError(t, store.ClearStore(ctx, surface, tool))
		for i := 0; i < n; i++ {
			rec := domain.NewRecord(map[string]any{domain.FieldUID: fmt.Sprintf("r%d", i)})
			require.NoError(t, store.AddRecord(ctx, surface, tool, rec))
		}
	}

	uids := func(t *testing.T) []string {
		t.Helper()
		recs, err := store.Records(ctx, surface, tool)
		require.NoError(t, err)
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, fmt.Sprint(r.Data[domain.FieldUID]))
		}
		return out
	}

	t.Run("Empty Store", func(t *testing.T) {
		recs, err := store.Records(ctx, "unknown-"+surface, tool)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("Add Preserves Order", func(t *testing.T) {
		seed(t, 3)
		assert.Equal(t, []string{"r0", "r1", "r2"}, uids(t))
	})

	t.Run("Records Are Copies", func(t *testing.T) {
		seed(t, 1)
		recs, err := store.Records(ctx, surface, tool)
		require.NoError(t, err)
		recs[0].Data[domain.FieldUID] = "mutated"
		assert.Equal(t, []string{"r0"}, uids(t))
	})

	t.Run("Replace", func(t *testing.T) {
		seed(t, 2)
		rec := domain.NewRecord(map[string]any{domain.FieldUID: "x"})
		rec.Active = true
		require.NoError(t, store.ReplaceRecord(ctx, surface, tool, 1, rec))

		recs, err := store.Records(ctx, surface, tool)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "x", recs[1].Data[domain.FieldUID])
		assert.True(t, recs[1].Active)
		assert.True(t, recs[1].Visible)

		err = store.ReplaceRecord(ctx, surface, tool, 5, rec)
		assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
	})

	t.Run("Clear", func(t *testing.T) {
		seed(t, 2)
		require.NoError(t, store.ClearStore(ctx, surface, tool))
		assert.Empty(t, uids(t))
	})

	t.Run("Isolation By Tool", func(t *testing.T) {
		seed(t, 1)
		other, err := store.Records(ctx, surface, "OtherTool")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	splicer, ok := store.(Splicer)
	if !ok {
		return
	}

	t.Run("Splice Middle", func(t *testing.T) {
		seed(t, 3)
		require.NoError(t, splicer.RemoveRecordAt(ctx, surface, tool, 1))
		assert.Equal(t, []string{"r0", "r2"}, uids(t))
	})

	t.Run("Splice Out Of Range", func(t *testing.T) {
		seed(t, 1)
		err := splicer.RemoveRecordAt(ctx, surface, tool, 3)
		assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
		assert.Equal(t, []string{"r0"}, uids(t))
	})

	require.NoError(t, store.ClearStore(ctx, surface, tool))
}

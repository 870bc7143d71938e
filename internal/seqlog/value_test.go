package seqlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplog/snaplog/internal/codec"
	"github.com/snaplog/snaplog/internal/storage"
)

type transfer struct {
	From   string
	To     string
	Amount int64
	At     time.Time
}

func TestAppendValue(t *testing.T) {
	ctx := context.Background()

	for _, format := range []string{codec.FormatJSON, codec.FormatCBOR} {
		t.Run(format, func(t *testing.T) {
			c, err := codec.New(format, "snappy")
			require.NoError(t, err)
			l, err := New(storage.NewMemoryStore(), WithCodec(c))
			require.NoError(t, err)

			in := transfer{From: "alice", To: "bob", Amount: 42, At: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
			h, err := l.AppendValue(ctx, in)
			require.NoError(t, err)
			_, err = l.AppendValue(ctx, map[string]int{"count": 3})
			require.NoError(t, err)

			var out transfer
			e, err := l.GetValue(ctx, h, &out)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), e.Index)
			assert.True(t, in.At.Equal(out.At))
			out.At = in.At
			assert.Equal(t, in, out)

			entries, err := Collect(l.ReadAll(ctx))
			require.NoError(t, err)
			require.Len(t, entries, 2)
			var counts map[string]int
			require.NoError(t, l.DecodeValue(entries[1], &counts))
			assert.Equal(t, map[string]int{"count": 3}, counts)
		})
	}
}

func TestAppendValueErrors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l, err := New(store)
	require.NoError(t, err)

	_, err = l.AppendValue(ctx, make(chan int))
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())

	h := appendValues(t, l, "not a structured value")[0]
	var out transfer
	_, err = l.GetValue(ctx, h, &out)
	assert.Error(t, err)

	_, err = l.GetValue(ctx, "missing", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenWithDifferentCompression(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	settings := []string{"none", "snappy", "lz4", "zstd", "none"}
	var hashes []string
	for i, compression := range settings {
		c, err := codec.New(codec.FormatCBOR, compression)
		require.NoError(t, err)
		l, err := New(store, WithCodec(c))
		require.NoError(t, err, compression)

		h, err := l.Append(ctx, []byte(compression))
		require.NoError(t, err, "append after switching to %s", compression)
		hashes = append(hashes, h)

		for j, prev := range hashes {
			e, err := l.Get(ctx, prev)
			require.NoError(t, err, "read entry %d with %s", j, compression)
			assert.Equal(t, settings[j], string(e.Value))
		}

		report, err := l.Verify(ctx)
		require.NoError(t, err, compression)
		assert.Equal(t, uint64(i+1), report.Entries)
	}
}

package seqlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplog/snaplog/internal/storage"
)

func TestReadFrom(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 30)

	tests := []struct {
		name  string
		start uint64
		end   uint64
		want  []uint64
	}{
		{name: "middle range", start: 3, end: 17, want: rangeOf(3, 17)},
		{name: "single entry", start: 4, end: 4, want: []uint64{4}},
		{name: "end before start", start: 5, end: 2, want: []uint64{5}},
		{name: "whole log", start: 0, end: 29, want: rangeOf(0, 29)},
		{name: "end past tail", start: 25, end: 100, want: rangeOf(25, 29)},
		{name: "last entry", start: 29, end: 29, want: []uint64{29}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Collect(l.ReadFrom(ctx, tt.start, tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.want, indices(entries))
		})
	}
}

func TestReadFromBeyondEnd(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 3)

	it := l.ReadFrom(ctx, 3, 10)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrNotFound)
	assert.Nil(t, it.Entry())
}

func TestIteratorEarlyTermination(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 10)

	it := l.ReadAll(ctx)
	for i := 0; i < 3; i++ {
		require.True(t, it.Next())
	}
	it.Close()
	it.Close()
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())

	// An abandoned iterator must not block writers.
	appendValues(t, l, "after")
	current, _, err := l.CurrentIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), current)
}

func TestIteratorRestart(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 5)

	first, err := Collect(l.ReadAll(ctx))
	require.NoError(t, err)
	second, err := Collect(l.ReadAll(ctx))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIteratorSeesEntriesAppendedDuringWalk(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 2)

	it := l.ReadAll(ctx)
	defer it.Close()

	var got []uint64
	for it.Next() {
		got = append(got, it.Entry().Index)
		if it.Entry().Index == 0 {
			appendValues(t, l, "late")
		}
	}
	require.NoError(t, it.Err())
	// The tail is read after its next pointer was patched.
	assert.Equal(t, []uint64{0, 1, 2}, got)
}

func TestIteratorRaw(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendValues(t, l, "John Doe", "Jane Doe")

	it := l.ReadAll(ctx)
	defer it.Close()
	for it.Next() {
		decoded, err := l.Decode(it.Raw())
		require.NoError(t, err)
		assert.Equal(t, it.Entry(), decoded)

		raw, err := l.GetRaw(ctx, it.Entry().Hash)
		require.NoError(t, err)
		assert.Equal(t, it.Raw(), raw)
	}
	require.NoError(t, it.Err())
}

func TestIteratorCancelledContext(t *testing.T) {
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 5)

	ctx, cancel := context.WithCancel(context.Background())
	it := l.ReadAll(ctx)
	require.True(t, it.Next())
	cancel()

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func rangeOf(from, to uint64) []uint64 {
	var out []uint64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

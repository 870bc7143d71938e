package seqlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplog/snaplog/internal/hash"
	"github.com/snaplog/snaplog/internal/storage"
)

func TestVerifyEmptyLog(t *testing.T) {
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)

	report, err := l.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), report.Entries)
	assert.Empty(t, report.Root)
	assert.Empty(t, report.FirstHash)
	assert.Empty(t, report.LastHash)
}

func TestVerifyHealthyLog(t *testing.T) {
	ctx := context.Background()
	l, _ := newBoltLog(t)
	hashes := appendN(t, l, 12)

	report, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), report.Entries)
	assert.Equal(t, hashes[0], report.FirstHash)
	assert.Equal(t, hashes[11], report.LastHash)

	tree := hash.NewMerkleTreeBuilder(hash.DefaultAlgorithm)
	for _, h := range hashes {
		tree.AddLeafHash(h)
	}
	require.NoError(t, tree.Build())
	assert.Equal(t, tree.GetRoot(), report.Root)
}

func TestVerifyRootChangesWithAppend(t *testing.T) {
	ctx := context.Background()
	l, err := New(storage.NewMemoryStore())
	require.NoError(t, err)
	appendN(t, l, 3)

	before, err := l.Verify(ctx)
	require.NoError(t, err)
	appendValues(t, l, "one more")
	after, err := l.Verify(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before.Root, after.Root)
	assert.Equal(t, before.Entries+1, after.Entries)
}

func TestProof(t *testing.T) {
	ctx := context.Background()
	gen, err := hash.NewGenerator(hash.AlgorithmBLAKE3)
	require.NoError(t, err)
	l, err := New(storage.NewMemoryStore(), WithGenerator(gen))
	require.NoError(t, err)
	hashes := appendN(t, l, 7)

	report, err := l.Verify(ctx)
	require.NoError(t, err)

	for _, h := range hashes {
		proof, err := l.Proof(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, hash.AlgorithmBLAKE3, proof.Algorithm())
		assert.True(t, proof.Verify(report.Root), "proof for %s", h)
	}

	_, err = l.Proof(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// tamper rewrites the entry at index through the raw store, bypassing Append.
func tamper(t *testing.T, l *Log, store storage.Store, index uint64, modify func(e *Entry)) {
	t.Helper()
	ctx := context.Background()
	h, err := l.HashAt(ctx, index)
	require.NoError(t, err)
	e, err := l.Get(ctx, h)
	require.NoError(t, err)

	modify(e)
	data, err := l.codec.Marshal(e.record())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, []byte(h), data))
}

func putPointer(t *testing.T, l *Log, store storage.Store, key []byte, h string) {
	t.Helper()
	data, err := l.codec.MarshalString(h)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), key, data))
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name      string
		tamper    func(t *testing.T, l *Log, store storage.Store, hashes []string)
		wantIndex uint64
	}{
		{
			name: "rewritten previous pointer",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				tamper(t, l, store, 2, func(e *Entry) { e.Previous = hashes[0] })
			},
			wantIndex: 2,
		},
		{
			name: "rewritten index",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				tamper(t, l, store, 3, func(e *Entry) { e.Index = 7 })
			},
			wantIndex: 3,
		},
		{
			name: "next pointer to missing entry",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				gen, err := hash.NewGenerator("")
				require.NoError(t, err)
				dangling, err := gen.Generate()
				require.NoError(t, err)
				tamper(t, l, store, 1, func(e *Entry) { e.Next = dangling })
			},
			wantIndex: 2,
		},
		{
			name: "index record points elsewhere",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				putPointer(t, l, store, indexKey(1), hashes[4])
			},
			wantIndex: 1,
		},
		{
			name: "index record past the tail",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				putPointer(t, l, store, indexKey(5), hashes[0])
			},
			wantIndex: 5,
		},
		{
			name: "lastHash not at tail",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				putPointer(t, l, store, lastHashKey, hashes[2])
			},
			wantIndex: 4,
		},
		{
			name: "truncated chain",
			tamper: func(t *testing.T, l *Log, store storage.Store, hashes []string) {
				tamper(t, l, store, 2, func(e *Entry) { e.Next = "" })
			},
			wantIndex: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			l, err := New(store)
			require.NoError(t, err)
			hashes := appendN(t, l, 5)

			tt.tamper(t, l, store, hashes)

			_, err = l.Verify(context.Background())
			require.Error(t, err)
			require.True(t, IsIntegrityError(err), "got %v", err)
			assert.Equal(t, tt.wantIndex, AsIntegrityError(err).Index)
		})
	}
}

func TestVerifyMissingFirstHash(t *testing.T) {
	store := storage.NewMemoryStore()
	l, err := New(store)
	require.NoError(t, err)
	putPointer(t, l, store, lastHashKey, "orphan")

	_, err = l.Verify(context.Background())
	assert.True(t, IsIntegrityError(err))

	_, err = l.Append(context.Background(), []byte("x"))
	assert.True(t, IsIntegrityError(err))
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval syncs every commit but lets Pebble coalesce the WAL
	// syncs of commits arriving within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps the configuration spelling onto a FsyncMode.
func ParseFsyncMode(s string) FsyncMode {
	switch s {
	case "always":
		return FsyncModeAlways
	case "interval":
		return FsyncModeInterval
	case "never":
		return FsyncModeNever
	default:
		return FsyncModeUnspecified
	}
}

// PebbleOptions configures the Pebble store.
type PebbleOptions struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// Pebble allows advanced tuning. If nil, defaults are used.
	Pebble *pebble.Options
}

// PebbleStore wraps a Pebble database. Batches map directly onto pebble
// batches, which commit atomically.
type PebbleStore struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
}

func OpenPebble(po PebbleOptions, opts ...Option) (*PebbleStore, error) {
	if po.DataDir == "" {
		return nil, errors.New("pebble: DataDir is required")
	}
	o := buildOptions(opts)

	popts := po.Pebble
	if popts == nil {
		popts = &pebble.Options{}
	}

	switch po.Fsync {
	case FsyncModeAlways:
	case FsyncModeInterval:
		interval := po.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		popts.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		popts.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(po.DataDir, popts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}

	return &PebbleStore{
		inner:     inner,
		writeSync: po.Fsync != FsyncModeNever,
		metrics:   o.metrics,
	}, nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Close()
}

func (s *PebbleStore) writeOptions() *pebble.WriteOptions {
	if s.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Get copies the value for the given key.
func (s *PebbleStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := s.inner.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	buf := append([]byte(nil), val...)
	s.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

func (s *PebbleStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if err := s.inner.Set(key, value, s.writeOptions()); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	s.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

func (s *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{store: s}
}

type pebbleBatch struct {
	store *PebbleStore
	puts  []pendingPut
}

func (b *pebbleBatch) Put(key, value []byte) {
	b.puts = append(b.puts, copyPut(key, value))
}

func (b *pebbleBatch) Len() int {
	return len(b.puts)
}

func (b *pebbleBatch) Write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	batch := b.store.inner.NewBatch()
	defer batch.Close()

	for _, p := range b.puts {
		if err := batch.Set(p.key, p.value, nil); err != nil {
			return fmt.Errorf("failed to stage key %q: %w", p.key, err)
		}
	}
	if err := batch.Commit(b.store.writeOptions()); err != nil {
		return err
	}

	b.store.metrics.ObserveBatchCommit(time.Since(start), len(b.puts), putsSize(b.puts))
	return nil
}

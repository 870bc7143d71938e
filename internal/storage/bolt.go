package storage

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var LogBucket = []byte("snaplog")

// BoltStore keeps every key in a single bbolt bucket. Batches are applied in
// one read-write transaction.
type BoltStore struct {
	db      *bolt.DB
	metrics MetricsHook
}

func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := buildOptions(opts)

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(LogBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, metrics: o.metrics}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	var value []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(LogBucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRead(time.Since(start), len(value))
	return value, nil
}

func (s *BoltStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(LogBucket).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}

	s.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

func (s *BoltStore) NewBatch() Batch {
	return &boltBatch{store: s}
}

type boltBatch struct {
	store *BoltStore
	puts  []pendingPut
}

func (b *boltBatch) Put(key, value []byte) {
	b.puts = append(b.puts, copyPut(key, value))
}

func (b *boltBatch) Len() int {
	return len(b.puts)
}

func (b *boltBatch) Write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	err := b.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(LogBucket)
		for _, p := range b.puts {
			if err := bucket.Put(p.key, p.value); err != nil {
				return fmt.Errorf("failed to put key %q: %w", p.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.store.metrics.ObserveBatchCommit(time.Since(start), len(b.puts), putsSize(b.puts))
	return nil
}

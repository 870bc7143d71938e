package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store for tests and embedding. FailWrites makes
// every subsequent Put and batch Write fail without applying anything.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	writeErr error
	metrics  MetricsHook
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		data:    make(map[string][]byte),
		metrics: o.metrics,
	}
}

// FailWrites makes writes return err. A nil err restores normal behavior.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	s.mu.RLock()
	v, ok := s.data[string(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.metrics.ObserveRead(time.Since(start), len(v))
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data[string(key)] = append([]byte(nil), value...)
	s.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

type memoryBatch struct {
	store *MemoryStore
	puts  []pendingPut
}

func (b *memoryBatch) Put(key, value []byte) {
	b.puts = append(b.puts, copyPut(key, value))
}

func (b *memoryBatch) Len() int {
	return len(b.puts)
}

func (b *memoryBatch) Write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	for _, p := range b.puts {
		s.data[string(p.key)] = p.value
	}

	s.metrics.ObserveBatchCommit(time.Since(start), len(b.puts), putsSize(b.puts))
	return nil
}

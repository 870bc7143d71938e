// Package storage provides the ordered key-value stores the sequence log is
// layered on. Every engine exposes the same narrow contract: point reads that
// report absence as ErrNotFound, single puts, and batches whose puts apply
// all together or not at all.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snaplog/snaplog/internal/config"
)

// ErrNotFound is returned by Get when the key is absent. Adapters translate
// their engine's native miss into this sentinel and nothing else.
var ErrNotFound = errors.New("storage: key not found")

// Store is an ordered byte-keyed store with atomic batched writes.
type Store interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Put stores a single key.
	Put(ctx context.Context, key, value []byte) error
	// NewBatch starts an empty write batch.
	NewBatch() Batch
	Close() error
}

// Batch accumulates puts and applies them atomically on Write. A Batch must
// not be reused after Write returns.
type Batch interface {
	Put(key, value []byte)
	// Len returns the number of queued puts.
	Len() int
	// Write commits every queued put or none of them.
	Write(ctx context.Context) error
}

// MetricsHook observes store latencies and sizes.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

type options struct {
	metrics MetricsHook
}

// Option configures a store opened with Open or one of the engine constructors.
type Option func(o *options)

// WithMetrics installs a MetricsHook.
func WithMetrics(m MetricsHook) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{metrics: NoopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open opens the store selected by cfg.Engine.
func Open(ctx context.Context, cfg config.StorageConfig, opts ...Option) (Store, error) {
	switch cfg.Engine {
	case config.EngineBolt, "":
		return NewBoltStore(cfg.Path, opts...)
	case config.EnginePebble:
		return OpenPebble(PebbleOptions{
			DataDir: cfg.Path,
			Fsync:   ParseFsyncMode(cfg.Fsync),
		}, opts...)
	case config.EnginePostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Table, opts...)
	default:
		return nil, fmt.Errorf("unknown storage engine: %s", cfg.Engine)
	}
}

// pendingPut is a queued batch write shared by the batch implementations.
type pendingPut struct {
	key   []byte
	value []byte
}

func copyPut(key, value []byte) pendingPut {
	return pendingPut{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	}
}

func putsSize(puts []pendingPut) int {
	n := 0
	for _, p := range puts {
		n += len(p.key) + len(p.value)
	}
	return n
}

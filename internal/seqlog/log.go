// Package seqlog implements an append-only, hash-linked sequence log on top of
// an ordered key-value store.
//
// Every entry is stored under its identifier and links to its neighbors
// through previous/next identifiers. Two pointer records track the ends of the
// chain and one index record per entry maps its decimal position to its
// identifier:
//
//	firstHash -> identifier of index 0
//	lastHash  -> identifier of the highest index
//	"0", "1"  -> identifier at that index
//	<hash>    -> encoded entry
//
// Append rewrites the previous tail, the pointer records, the index record and
// the new entry in a single atomic batch. Appends on one Log are serialized by
// an internal mutex; reads never lock. Only one process may write to a store.
package seqlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/snaplog/snaplog/internal/codec"
	"github.com/snaplog/snaplog/internal/hash"
	"github.com/snaplog/snaplog/internal/storage"
)

var (
	firstHashKey = []byte("firstHash")
	lastHashKey  = []byte("lastHash")
)

func indexKey(index uint64) []byte {
	return []byte(strconv.FormatUint(index, 10))
}

// isReservedKey reports whether key names a pointer record or an index record
// rather than an entry.
func isReservedKey(key string) bool {
	if key == string(firstHashKey) || key == string(lastHashKey) {
		return true
	}
	n, err := strconv.ParseUint(key, 10, 64)
	return err == nil && strconv.FormatUint(n, 10) == key
}

// Entry is one record of the log. Previous is empty for the first entry and
// Next is empty for the most recently appended one.
type Entry struct {
	Hash     string
	Index    uint64
	Value    []byte
	Previous string
	Next     string
}

func (e *Entry) HasPrevious() bool { return e.Previous != "" }
func (e *Entry) HasNext() bool     { return e.Next != "" }

func (e *Entry) record() *codec.Record {
	return &codec.Record{
		Hash:     e.Hash,
		Index:    e.Index,
		Value:    e.Value,
		Previous: codec.StringPtr(e.Previous),
		Next:     codec.StringPtr(e.Next),
	}
}

func entryFromRecord(r *codec.Record) *Entry {
	return &Entry{
		Hash:     r.Hash,
		Index:    r.Index,
		Value:    r.Value,
		Previous: codec.StringValue(r.Previous),
		Next:     codec.StringValue(r.Next),
	}
}

// Generator produces identifiers for new entries.
type Generator interface {
	Generate() (string, error)
}

// Option configures a Log.
type Option func(l *Log)

// WithCodec sets the entry codec. The default is codec.New(cbor, none).
func WithCodec(c codec.Codec) Option {
	return func(l *Log) {
		l.codec = c
	}
}

// WithGenerator sets the identifier generator. The default digests
// crypto/rand output with sha256.
func WithGenerator(g Generator) Option {
	return func(l *Log) {
		l.generator = g
	}
}

// WithLogger sets the structured logger. Nothing is logged by default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Log is a hash-linked sequence log. It is safe for concurrent use; appends
// are serialized.
type Log struct {
	mu sync.Mutex

	store     storage.Store
	codec     codec.Codec
	generator Generator
	logger    *slog.Logger
}

// New returns a Log over store. The store stays owned by the caller.
func New(store storage.Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("seqlog: nil store")
	}

	l := &Log{store: store}
	for _, opt := range opts {
		opt(l)
	}

	if l.codec == nil {
		c, err := codec.New(codec.FormatCBOR, codec.CompressionNone.String())
		if err != nil {
			return nil, err
		}
		l.codec = c
	}
	if l.generator == nil {
		gen, err := hash.NewGenerator(hash.DefaultAlgorithm)
		if err != nil {
			return nil, err
		}
		l.generator = gen
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return l, nil
}

// head is the state an append reads before building its batch.
type head struct {
	first string
	last  string
	tail  *Entry
}

func (l *Log) readHead(ctx context.Context) (head, error) {
	var h head
	var err error

	if h.first, _, err = l.getPointer(ctx, firstHashKey); err != nil {
		return h, err
	}
	if h.last, _, err = l.getPointer(ctx, lastHashKey); err != nil {
		return h, err
	}

	if h.first == "" && h.last != "" {
		return h, newIntegrityError(0, h.last, "lastHash is set but firstHash is missing")
	}
	if h.last == "" {
		if h.first != "" {
			return h, newIntegrityError(0, h.first, "firstHash is set but lastHash is missing")
		}
		return h, nil
	}

	h.tail, err = l.Get(ctx, h.last)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return h, newIntegrityError(0, h.last, "lastHash points to a missing entry")
		}
		return h, err
	}
	return h, nil
}

// Append adds value to the end of the log and returns its identifier.
//
// The previous tail's next pointer, the pointer records, the index record and
// the new entry are committed in one batch. If the batch is rejected a
// *CommitError is returned and the log is unchanged. Appends are not retried.
func (l *Log) Append(ctx context.Context, value []byte) (string, error) {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	h, index, err := l.append(ctx, value)
	AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		AppendFailures.Inc()
		return "", err
	}

	AppendTotal.Inc()
	l.logger.Debug("appended entry", "hash", h, "index", index, "bytes", len(value))
	return h, nil
}

func (l *Log) append(ctx context.Context, value []byte) (string, uint64, error) {
	h, err := l.generator.Generate()
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate identifier: %w", err)
	}

	cur, err := l.readHead(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read log head: %w", err)
	}

	batch := l.store.NewBatch()

	if cur.first == "" {
		if err := l.putPointer(batch, firstHashKey, h); err != nil {
			return "", 0, err
		}
	}

	var index uint64
	if cur.tail != nil {
		tail := *cur.tail
		tail.Next = h
		if err := l.putEntry(batch, &tail); err != nil {
			return "", 0, err
		}
		index = cur.tail.Index + 1
	}

	if err := l.putPointer(batch, lastHashKey, h); err != nil {
		return "", 0, err
	}
	if err := l.putPointer(batch, indexKey(index), h); err != nil {
		return "", 0, err
	}

	entry := &Entry{
		Hash:     h,
		Index:    index,
		Value:    value,
		Previous: cur.last,
	}
	if err := l.putEntry(batch, entry); err != nil {
		return "", 0, err
	}

	if err := batch.Write(ctx); err != nil {
		l.logger.Error("append commit failed", "hash", h, "index", index, "error", err)
		return "", 0, &CommitError{Hash: h, Index: index, Err: err}
	}
	return h, index, nil
}

// AppendValue encodes v with the log's codec and appends the result. Read it
// back with GetValue or DecodeValue.
func (l *Log) AppendValue(ctx context.Context, v any) (string, error) {
	data, err := l.codec.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return l.Append(ctx, data)
}

// DecodeValue decodes the value of e, as written by AppendValue, into v.
func (l *Log) DecodeValue(e *Entry, v any) error {
	if err := l.codec.UnmarshalValue(e.Value, v); err != nil {
		return fmt.Errorf("failed to decode value of entry %s: %w", e.Hash, err)
	}
	return nil
}

// GetValue loads the entry stored under hash and decodes its value into v.
func (l *Log) GetValue(ctx context.Context, hash string, v any) (*Entry, error) {
	e, err := l.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := l.DecodeValue(e, v); err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Log) putPointer(batch storage.Batch, key []byte, h string) error {
	data, err := l.codec.MarshalString(h)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	batch.Put(key, data)
	return nil
}

func (l *Log) putEntry(batch storage.Batch, e *Entry) error {
	data, err := l.codec.Marshal(e.record())
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", e.Hash, err)
	}
	batch.Put([]byte(e.Hash), data)
	return nil
}

// getPointer reads a pointer or index record. Absence is reported as ok=false.
func (l *Log) getPointer(ctx context.Context, key []byte) (string, bool, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	h, err := l.codec.UnmarshalString(data)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return h, true, nil
}

// GetRaw returns the encoded entry stored under hash without decoding it.
func (l *Log) GetRaw(ctx context.Context, hash string) ([]byte, error) {
	if hash == "" || isReservedKey(hash) {
		return nil, fmt.Errorf("entry %q: %w", hash, ErrNotFound)
	}

	data, err := l.store.Get(ctx, []byte(hash))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("entry %q: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read entry %s: %w", hash, err)
	}
	return data, nil
}

// Decode decodes an encoded entry as returned by GetRaw or Iterator.Raw.
func (l *Log) Decode(data []byte) (*Entry, error) {
	r, err := l.codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return entryFromRecord(r), nil
}

// Get returns the entry stored under hash, or an error wrapping ErrNotFound.
func (l *Log) Get(ctx context.Context, hash string) (*Entry, error) {
	data, err := l.GetRaw(ctx, hash)
	if err != nil {
		return nil, err
	}

	e, err := l.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", hash, err)
	}
	return e, nil
}

// Has reports whether hash identifies a stored entry. Absence is not an
// error; other store failures are returned.
func (l *Log) Has(ctx context.Context, hash string) (bool, error) {
	_, err := l.GetRaw(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FirstHash returns the identifier of the entry at index 0. ok is false when
// the log is empty.
func (l *Log) FirstHash(ctx context.Context) (hash string, ok bool, err error) {
	return l.getPointer(ctx, firstHashKey)
}

// LastHash returns the identifier of the most recently appended entry. ok is
// false when the log is empty.
func (l *Log) LastHash(ctx context.Context) (hash string, ok bool, err error) {
	return l.getPointer(ctx, lastHashKey)
}

// CurrentIndex returns the index of the most recently appended entry, which is
// the number of entries minus one. ok is false when the log is empty.
func (l *Log) CurrentIndex(ctx context.Context) (index uint64, ok bool, err error) {
	last, ok, err := l.LastHash(ctx)
	if err != nil || !ok {
		return 0, false, err
	}

	e, err := l.Get(ctx, last)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, newIntegrityError(0, last, "lastHash points to a missing entry")
		}
		return 0, false, err
	}
	return e.Index, true, nil
}

// HashAt returns the identifier stored at index, or an error wrapping
// ErrNotFound when index is beyond the end of the log.
func (l *Log) HashAt(ctx context.Context, index uint64) (string, error) {
	h, ok, err := l.getPointer(ctx, indexKey(index))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	return h, nil
}

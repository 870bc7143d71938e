package seqlog

import (
	"context"
)

// Iterator walks the chain one store read per Next call. It holds no store
// resources between calls, so abandoning it early is safe; Close only marks
// it finished. An Iterator is not safe for concurrent use.
//
//	it := l.ReadAll(ctx)
//	defer it.Close()
//	for it.Next() {
//		e := it.Entry()
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	ctx context.Context
	log *Log

	// start resolves the first identifier on the first call to Next.
	start    func(ctx context.Context) (string, error)
	backward bool
	bounded  bool
	end      uint64

	started bool
	done    bool
	next    string
	entry   *Entry
	raw     []byte
	err     error
}

// ReadAll iterates every entry from firstHash in ascending index order.
func (l *Log) ReadAll(ctx context.Context) *Iterator {
	return &Iterator{
		ctx: ctx,
		log: l,
		start: func(ctx context.Context) (string, error) {
			h, _, err := l.FirstHash(ctx)
			return h, err
		},
	}
}

// ReadFrom iterates from the entry at index start and stops after yielding
// the first entry whose index is >= end. When end < start exactly one entry,
// the one at start, is yielded. If start is beyond the end of the log, Next
// returns false and Err wraps ErrNotFound.
func (l *Log) ReadFrom(ctx context.Context, start, end uint64) *Iterator {
	return &Iterator{
		ctx: ctx,
		log: l,
		start: func(ctx context.Context) (string, error) {
			return l.HashAt(ctx, start)
		},
		bounded: true,
		end:     end,
	}
}

// ReadBackward iterates every entry from lastHash in descending index order by
// following previous pointers.
func (l *Log) ReadBackward(ctx context.Context) *Iterator {
	return &Iterator{
		ctx: ctx,
		log: l,
		start: func(ctx context.Context) (string, error) {
			h, _, err := l.LastHash(ctx)
			return h, err
		},
		backward: true,
	}
}

// Next loads the next entry. It returns false when the walk is finished or
// failed; check Err to tell the two apart.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	if !it.started {
		it.started = true
		first, err := it.start(it.ctx)
		if err != nil {
			return it.fail(err)
		}
		it.next = first
	}

	if it.next == "" {
		it.finish()
		return false
	}
	if err := it.ctx.Err(); err != nil {
		return it.fail(err)
	}

	raw, err := it.log.GetRaw(it.ctx, it.next)
	if err != nil {
		return it.fail(err)
	}
	entry, err := it.log.Decode(raw)
	if err != nil {
		return it.fail(err)
	}

	it.entry, it.raw = entry, raw
	if it.backward {
		it.next = entry.Previous
	} else {
		it.next = entry.Next
	}
	if it.bounded && entry.Index >= it.end {
		it.next = ""
	}
	return true
}

// Entry returns the entry loaded by the last successful Next.
func (it *Iterator) Entry() *Entry {
	return it.entry
}

// Raw returns the encoded form of the current entry.
func (it *Iterator) Raw() []byte {
	return it.raw
}

func (it *Iterator) Err() error {
	return it.err
}

// Close stops the walk. It is idempotent.
func (it *Iterator) Close() {
	it.finish()
}

func (it *Iterator) fail(err error) bool {
	it.err = err
	it.finish()
	return false
}

func (it *Iterator) finish() {
	it.done = true
	it.entry = nil
	it.raw = nil
}

// Collect drains it and returns every entry.
func Collect(it *Iterator) ([]*Entry, error) {
	defer it.Close()

	var entries []*Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	return entries, it.Err()
}

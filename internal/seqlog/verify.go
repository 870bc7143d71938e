package seqlog

import (
	"context"
	"errors"

	"github.com/snaplog/snaplog/internal/hash"
)

// Report summarizes a successful Verify.
type Report struct {
	Entries   uint64
	FirstHash string
	LastHash  string
	// Root is the Merkle root over identifiers in index order. Empty for an
	// empty log.
	Root string
}

// Verify walks the chain forward and checks every invariant: contiguous
// indices from 0, back-links matching the forward walk, index records
// agreeing with the chain, entries stored under their own identifier, and the
// walk ending at lastHash. The first violation is returned as an
// *IntegrityError.
func (l *Log) Verify(ctx context.Context) (*Report, error) {
	first, _, err := l.FirstHash(ctx)
	if err != nil {
		return nil, err
	}
	last, _, err := l.LastHash(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{FirstHash: first, LastHash: last}
	switch {
	case first == "" && last == "":
		return report, nil
	case first == "":
		return nil, newIntegrityError(0, last, "lastHash is set but firstHash is missing")
	case last == "":
		return nil, newIntegrityError(0, first, "firstHash is set but lastHash is missing")
	}

	tree := hash.NewMerkleTreeBuilder(l.digestAlgorithm())

	var (
		expected uint64
		previous string
		tail     string
	)
	it := l.ReadAll(ctx)
	defer it.Close()

	for it.Next() {
		e := it.Entry()
		if e.Index != expected {
			return nil, newIntegrityError(expected, e.Hash, "expected index %d, found %d", expected, e.Index)
		}
		if e.Previous != previous {
			return nil, newIntegrityError(e.Index, e.Hash, "previous is %q, expected %q", e.Previous, previous)
		}

		mapped, err := l.HashAt(ctx, e.Index)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, newIntegrityError(e.Index, e.Hash, "index record is missing")
			}
			return nil, err
		}
		if mapped != e.Hash {
			return nil, newIntegrityError(e.Index, e.Hash, "index record points to %s", mapped)
		}

		tree.AddLeafHash(e.Hash)
		previous = e.Hash
		tail = e.Hash
		expected++
	}
	if err := it.Err(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newIntegrityError(expected, "", "chain references a missing entry: %v", err)
		}
		return nil, err
	}

	if tail != last {
		return nil, newIntegrityError(expected-1, tail, "chain ends at %s but lastHash is %s", tail, last)
	}
	if _, err := l.HashAt(ctx, expected); err == nil {
		return nil, newIntegrityError(expected, "", "index record exists beyond the end of the chain")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := tree.Build(); err != nil {
		return nil, err
	}
	report.Entries = expected
	report.Root = tree.GetRoot()
	return report, nil
}

func (l *Log) digestAlgorithm() string {
	if g, ok := l.generator.(interface{ Algorithm() string }); ok {
		return g.Algorithm()
	}
	return hash.DefaultAlgorithm
}

// Proof returns a Merkle inclusion proof for the entry identified by h
// against the root reported by Verify.
func (l *Log) Proof(ctx context.Context, h string) (*hash.MerkleProof, error) {
	if _, err := l.GetRaw(ctx, h); err != nil {
		return nil, err
	}

	tree := hash.NewMerkleTreeBuilder(l.digestAlgorithm())
	it := l.ReadAll(ctx)
	defer it.Close()
	for it.Next() {
		tree.AddLeafHash(it.Entry().Hash)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	if err := tree.Build(); err != nil {
		return nil, err
	}
	return tree.GetProof(h)
}

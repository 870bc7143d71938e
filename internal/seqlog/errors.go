package seqlog

import (
	"errors"
	"fmt"

	"github.com/snaplog/snaplog/internal/storage"
)

// ErrNotFound is returned by Get and ReadFrom when an identifier or index is
// not in the log. It is the storage sentinel, so errors.Is works across both
// packages.
var ErrNotFound = storage.ErrNotFound

// CommitError reports that the atomic batch of an append was rejected. No part
// of the append was applied.
type CommitError struct {
	Hash  string
	Index uint64
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit append of %s at index %d: %v", e.Hash, e.Index, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

func IsCommitError(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

func AsCommitError(err error) *CommitError {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// IntegrityError reports a stored chain that violates the log invariants.
type IntegrityError struct {
	Index   uint64
	Hash    string
	Message string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at index %d (%s): %s", e.Index, e.Hash, e.Message)
}

func newIntegrityError(index uint64, hash, format string, args ...any) *IntegrityError {
	return &IntegrityError{
		Index:   index,
		Hash:    hash,
		Message: fmt.Sprintf(format, args...),
	}
}

func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

func AsIntegrityError(err error) *IntegrityError {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}

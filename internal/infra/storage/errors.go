package storage

import "errors"

// Kind tags the category of a store failure so callers can branch with
// errors.As instead of matching on error text.
type Kind int

const (
	KindOther Kind = iota
	KindConflict
	// KindReorg marks the deliberate not-null violation (Postgres 23502) the
	// blocks table trigger raises when an existing block's hash changes
	// under a would-be upsert — the store's signal that a reorg occurred.
	KindReorg
)

// StoreError tags a store failure with its Kind, so the worker loop can
// distinguish "retry me" from "this needs a human" without string matching.
type StoreError struct {
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrReorgDetected is the sentinel wrapped inside a StoreError of KindReorg.
var ErrReorgDetected = errors.New("storage: reorg detected")

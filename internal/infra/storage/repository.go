// Package storage defines the downstream store's write contract: an
// idempotent bulk-write interface plus the tagged errors describing why a
// write failed.
package storage

import (
	"context"

	"github.com/evmwatch/indexer/internal/core/domain"
)

// Store persists a fetched range's blocks, transactions, and logs
// atomically. A single range's three slices commit together or not at
// all; last_processed only advances after a successful commit.
type Store interface {
	Save(ctx context.Context, blocks []domain.Block, txs []domain.Transaction, logs []domain.Log) error

	// LastPersistedHeight returns the highest block number committed so
	// far; the supervisor logs it at startup and the status command prints it.
	LastPersistedHeight(ctx context.Context) (uint64, error)

	Health(ctx context.Context) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evmwatch/indexer/internal/core/domain"
	"github.com/evmwatch/indexer/internal/indexing/metrics"
	"github.com/evmwatch/indexer/internal/infra/storage"
	"github.com/evmwatch/indexer/internal/infra/storage/postgres/sqlc"
)

// reorgNotNullCode is the Postgres SQLSTATE the blocks_reject_hash_change
// trigger deliberately raises when an upsert would silently overwrite a
// block's hash under a different parent chain.
const reorgNotNullCode = "23502"

// batchSize bounds how many rows go into a single unnest-based insert; the
// store chunks larger ranges to keep statements and locks small.
const batchSize = 1000

// Store implements storage.Store against Postgres.
type Store struct {
	db *DB
}

// NewStore wraps db as a storage.Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

// Save persists a range's blocks, transactions, and logs in a single
// transaction: all three tables commit together or the whole range rolls
// back and is left for the caller to Fail() and re-queue.
func (s *Store) Save(ctx context.Context, blocks []domain.Block, txs []domain.Transaction, logs []domain.Log) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.db.Queries.WithTx(tx.Tx)

	for _, batch := range chunkBlocks(blocks, batchSize) {
		if err := q.CreateBlocksBatch(ctx, blocksToParams(batch)); err != nil {
			return wrapStoreErr(err)
		}
	}

	for _, batch := range chunkTxs(txs, batchSize) {
		if err := q.CreateTransactionsBatch(ctx, txsToParams(batch)); err != nil {
			return wrapStoreErr(err)
		}
	}

	for _, batch := range chunkLogs(logs, batchSize) {
		if err := q.CreateLogsBatch(ctx, logsToParams(batch)); err != nil {
			return wrapStoreErr(err)
		}
	}

	metrics.DBBatchSize.WithLabelValues("save_blocks").Observe(float64(len(blocks)))
	metrics.DBBatchSize.WithLabelValues("save_transactions").Observe(float64(len(txs)))
	metrics.DBBatchSize.WithLabelValues("save_logs").Observe(float64(len(logs)))

	if err := tx.Commit(); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// LastPersistedHeight returns the highest block number committed so far.
func (s *Store) LastPersistedHeight(ctx context.Context) (uint64, error) {
	n, err := s.db.Queries.GetLastProcessedBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("get last persisted height: %w", err)
	}
	return uint64(n), nil
}

// Health checks whether the database is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func wrapStoreErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == reorgNotNullCode {
		return &storage.StoreError{Kind: storage.KindReorg, Err: storage.ErrReorgDetected}
	}
	return &storage.StoreError{Kind: storage.KindOther, Err: err}
}

func chunkBlocks(blocks []domain.Block, size int) [][]domain.Block {
	var out [][]domain.Block
	for size < len(blocks) {
		blocks, out = blocks[size:], append(out, blocks[0:size:size])
	}
	if len(blocks) > 0 {
		out = append(out, blocks)
	}
	return out
}

func chunkTxs(txs []domain.Transaction, size int) [][]domain.Transaction {
	var out [][]domain.Transaction
	for size < len(txs) {
		txs, out = txs[size:], append(out, txs[0:size:size])
	}
	if len(txs) > 0 {
		out = append(out, txs)
	}
	return out
}

func chunkLogs(logs []domain.Log, size int) [][]domain.Log {
	var out [][]domain.Log
	for size < len(logs) {
		logs, out = logs[size:], append(out, logs[0:size:size])
	}
	if len(logs) > 0 {
		out = append(out, logs)
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func blocksToParams(blocks []domain.Block) sqlc.CreateBlocksBatchParams {
	params := sqlc.CreateBlocksBatchParams{
		Numbers:      make([]int64, len(blocks)),
		Hashes:       make([]string, len(blocks)),
		ParentHashes: make([]string, len(blocks)),
		Timestamps:   make([]time.Time, len(blocks)),
		GasUseds:     make([]string, len(blocks)),
		GasLimits:    make([]string, len(blocks)),
		BaseFees:     make([]sql.NullString, len(blocks)),
	}
	for i, b := range blocks {
		params.Numbers[i] = int64(b.Number)
		params.Hashes[i] = b.Hash
		params.ParentHashes[i] = b.ParentHash
		params.Timestamps[i] = b.Timestamp
		params.GasUseds[i] = b.GasUsed
		params.GasLimits[i] = b.GasLimit
		params.BaseFees[i] = nullString(b.BaseFee)
	}
	return params
}

func txsToParams(txs []domain.Transaction) sqlc.CreateTransactionsBatchParams {
	params := sqlc.CreateTransactionsBatchParams{
		Hashes:            make([]string, len(txs)),
		BlockNumbers:      make([]int64, len(txs)),
		BlockHashes:       make([]string, len(txs)),
		TxIndexes:         make([]int32, len(txs)),
		FromAddresses:     make([]string, len(txs)),
		ToAddresses:       make([]sql.NullString, len(txs)),
		Values:            make([]string, len(txs)),
		GasUseds:          make([]int64, len(txs)),
		GasPrices:         make([]string, len(txs)),
		Nonces:            make([]int64, len(txs)),
		Statuses:          make([]int16, len(txs)),
		ContractAddresses: make([]sql.NullString, len(txs)),
	}
	for i, t := range txs {
		params.Hashes[i] = t.Hash
		params.BlockNumbers[i] = int64(t.BlockNumber)
		params.BlockHashes[i] = t.BlockHash
		params.TxIndexes[i] = int32(t.TxIndex)
		params.FromAddresses[i] = t.From
		params.ToAddresses[i] = nullString(t.To)
		params.Values[i] = t.Value
		params.GasUseds[i] = int64(t.GasUsed)
		params.GasPrices[i] = t.GasPrice
		params.Nonces[i] = int64(t.Nonce)
		params.Statuses[i] = int16(t.Status)
		params.ContractAddresses[i] = nullString(t.ContractAddress)
	}
	return params
}

func logsToParams(logs []domain.Log) sqlc.CreateLogsBatchParams {
	params := sqlc.CreateLogsBatchParams{
		TxHashes:     make([]string, len(logs)),
		LogIndexes:   make([]int32, len(logs)),
		BlockNumbers: make([]int64, len(logs)),
		Addresses:    make([]string, len(logs)),
		Topic0s:      make([]sql.NullString, len(logs)),
		Topic1s:      make([]sql.NullString, len(logs)),
		Topic2s:      make([]sql.NullString, len(logs)),
		Topic3s:      make([]sql.NullString, len(logs)),
		Datas:        make([]string, len(logs)),
	}
	for i, l := range logs {
		params.TxHashes[i] = l.TxHash
		params.LogIndexes[i] = int32(l.LogIndex)
		params.BlockNumbers[i] = int64(l.BlockNumber)
		params.Addresses[i] = l.Address
		params.Topic0s[i] = nullString(l.Topic0)
		params.Topic1s[i] = nullString(l.Topic1)
		params.Topic2s[i] = nullString(l.Topic2)
		params.Topic3s[i] = nullString(l.Topic3)
		params.Datas[i] = l.Data
	}
	return params
}

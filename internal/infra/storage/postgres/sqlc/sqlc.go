// Package sqlc holds hand-written query methods in the shape sqlc-generated
// code takes: a DBTX-scoped Queries struct with a WithTx variant, and
// batch-insert methods that unpack Go slices into Postgres arrays via
// unnest rather than building a multi-row VALUES list per call.
package sqlc

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting Queries run
// against either a bare connection or an open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds prepared query text bound to a DBTX.
type Queries struct {
	db DBTX
}

// New creates Queries bound to db (typically *sql.DB).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to an open transaction, so a caller can run
// several batch operations atomically.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// CreateBlocksBatchParams holds the column arrays for a batched block
// upsert. Each slice must be the same length; index i across all slices
// describes one block row.
type CreateBlocksBatchParams struct {
	Numbers      []int64
	Hashes       []string
	ParentHashes []string
	Timestamps   []time.Time
	GasUseds     []string
	GasLimits    []string
	BaseFees     []sql.NullString
}

const createBlocksBatch = `
INSERT INTO blocks (block_number, block_hash, parent_hash, block_timestamp, gas_used, gas_limit, base_fee)
SELECT * FROM unnest(
	$1::bigint[], $2::text[], $3::text[], $4::timestamptz[], $5::decimal(78,0)[], $6::decimal(78,0)[], $7::decimal(78,0)[]
)
ON CONFLICT (block_number) DO UPDATE SET
	block_hash = EXCLUDED.block_hash,
	parent_hash = EXCLUDED.parent_hash,
	block_timestamp = EXCLUDED.block_timestamp,
	gas_used = EXCLUDED.gas_used,
	gas_limit = EXCLUDED.gas_limit,
	base_fee = EXCLUDED.base_fee
`

// CreateBlocksBatch upserts many blocks in one round trip.
func (q *Queries) CreateBlocksBatch(ctx context.Context, arg CreateBlocksBatchParams) error {
	_, err := q.db.ExecContext(ctx, createBlocksBatch,
		pq.Array(arg.Numbers),
		pq.Array(arg.Hashes),
		pq.Array(arg.ParentHashes),
		pq.Array(arg.Timestamps),
		pq.Array(arg.GasUseds),
		pq.Array(arg.GasLimits),
		pq.Array(arg.BaseFees),
	)
	return err
}

// CreateTransactionsBatchParams holds the column arrays for a batched
// transaction insert.
type CreateTransactionsBatchParams struct {
	Hashes            []string
	BlockNumbers      []int64
	BlockHashes       []string
	TxIndexes         []int32
	FromAddresses     []string
	ToAddresses       []sql.NullString
	Values            []string
	GasUseds          []int64
	GasPrices         []string
	Nonces            []int64
	Statuses          []int16
	ContractAddresses []sql.NullString
}

const createTransactionsBatch = `
INSERT INTO transactions (
	hash, block_number, block_hash, tx_index, from_address, to_address,
	value, gas_used, gas_price, nonce, status, contract_address
)
SELECT * FROM unnest(
	$1::text[], $2::bigint[], $3::text[], $4::int[], $5::text[], $6::text[],
	$7::decimal(78,0)[], $8::bigint[], $9::decimal(78,0)[], $10::bigint[], $11::smallint[], $12::text[]
)
ON CONFLICT (hash) DO NOTHING
`

// CreateTransactionsBatch inserts many transactions in one round trip.
func (q *Queries) CreateTransactionsBatch(ctx context.Context, arg CreateTransactionsBatchParams) error {
	_, err := q.db.ExecContext(ctx, createTransactionsBatch,
		pq.Array(arg.Hashes),
		pq.Array(arg.BlockNumbers),
		pq.Array(arg.BlockHashes),
		pq.Array(arg.TxIndexes),
		pq.Array(arg.FromAddresses),
		pq.Array(arg.ToAddresses),
		pq.Array(arg.Values),
		pq.Array(arg.GasUseds),
		pq.Array(arg.GasPrices),
		pq.Array(arg.Nonces),
		pq.Array(arg.Statuses),
		pq.Array(arg.ContractAddresses),
	)
	return err
}

// CreateLogsBatchParams holds the column arrays for a batched log insert.
type CreateLogsBatchParams struct {
	TxHashes     []string
	LogIndexes   []int32
	BlockNumbers []int64
	Addresses    []string
	Topic0s      []sql.NullString
	Topic1s      []sql.NullString
	Topic2s      []sql.NullString
	Topic3s      []sql.NullString
	Datas        []string
}

const createLogsBatch = `
INSERT INTO logs (tx_hash, log_index, block_number, address, topic0, topic1, topic2, topic3, data)
SELECT * FROM unnest(
	$1::text[], $2::int[], $3::bigint[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[], $9::text[]
)
ON CONFLICT (tx_hash, log_index) DO NOTHING
`

// CreateLogsBatch inserts many logs in one round trip.
func (q *Queries) CreateLogsBatch(ctx context.Context, arg CreateLogsBatchParams) error {
	_, err := q.db.ExecContext(ctx, createLogsBatch,
		pq.Array(arg.TxHashes),
		pq.Array(arg.LogIndexes),
		pq.Array(arg.BlockNumbers),
		pq.Array(arg.Addresses),
		pq.Array(arg.Topic0s),
		pq.Array(arg.Topic1s),
		pq.Array(arg.Topic2s),
		pq.Array(arg.Topic3s),
		pq.Array(arg.Datas),
	)
	return err
}

const getLastProcessedBlock = `SELECT COALESCE(MAX(block_number), 0) FROM blocks`

// GetLastProcessedBlock returns the highest block number persisted, or 0 if empty.
func (q *Queries) GetLastProcessedBlock(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, getLastProcessedBlock).Scan(&n)
	return n, err
}

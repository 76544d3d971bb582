package domain

import "time"

// Block is a flat, strongly-typed image of a chain block row. 256-bit
// numeric fields are carried as decimal strings to preserve precision
// end-to-end between RPC, in-memory assembly, and the store.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	GasUsed    string // decimal(78,0) as string
	GasLimit   string
	BaseFee    string // nullable in practice, empty string = NULL
}

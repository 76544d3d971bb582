// Package fetcher retrieves one block's blocks/transactions/logs from an
// EVM node, applying the rate limiter and a bounded retry policy around
// the pair of RPC calls a single height requires.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evmwatch/indexer/internal/core/domain"
	"github.com/evmwatch/indexer/internal/indexing/metrics"
)

// FetchResult is one height's assembled record set.
type FetchResult struct {
	Block domain.Block
	Txs   []domain.Transaction
	Logs  []domain.Log
}

// RPCClient is the subset of rpc.Client the fetcher needs, narrowed for
// testability.
type RPCClient interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Limiter is the subset of ratelimiter.Limiter the fetcher needs.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Fetcher pulls and assembles one height at a time, retrying the whole
// fetch on transient RPC failure.
type Fetcher struct {
	client      RPCClient
	limiter     Limiter
	maxAttempts int
}

// New creates a Fetcher against client, gated by limiter, retrying a
// failed height up to maxAttempts times before giving up.
func New(client RPCClient, limiter Limiter, maxAttempts int) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Fetcher{client: client, limiter: limiter, maxAttempts: maxAttempts}
}

// Fetch retrieves and assembles the block, transactions, and logs for
// height, retrying the whole round trip on failure.
func (f *Fetcher) Fetch(ctx context.Context, height uint64) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1))*500*time.Millisecond + time.Duration(rand.IntN(500))*time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := f.fetchOnce(ctx, height)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch height %d: %d attempts exhausted: %w", height, f.maxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, height uint64) (*FetchResult, error) {
	hexHeight := fmt.Sprintf("0x%x", height)

	var rawBlock, rawReceipts json.RawMessage
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := f.limiter.Acquire(gctx); err != nil {
			return fmt.Errorf("acquire rate limit token: %w", err)
		}
		start := time.Now()
		res, err := f.client.Call(gctx, "eth_getBlockByNumber", hexHeight, true)
		metrics.RPCCallsTotal.WithLabelValues("eth_getBlockByNumber").Inc()
		metrics.RPCLatency.WithLabelValues("eth_getBlockByNumber").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RPCErrorsTotal.WithLabelValues("eth_getBlockByNumber", "retry").Inc()
			return err
		}
		rawBlock = res
		return nil
	})

	g.Go(func() error {
		if err := f.limiter.Acquire(gctx); err != nil {
			return fmt.Errorf("acquire rate limit token: %w", err)
		}
		start := time.Now()
		res, err := f.client.Call(gctx, "eth_getBlockReceipts", hexHeight)
		metrics.RPCCallsTotal.WithLabelValues("eth_getBlockReceipts").Inc()
		metrics.RPCLatency.WithLabelValues("eth_getBlockReceipts").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RPCErrorsTotal.WithLabelValues("eth_getBlockReceipts", "retry").Inc()
			return err
		}
		rawReceipts = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assemble(rawBlock, rawReceipts)
}

type rawBlock struct {
	Number       string  `json:"number"`
	Hash         string  `json:"hash"`
	ParentHash   string  `json:"parentHash"`
	Timestamp    string  `json:"timestamp"`
	GasUsed      string  `json:"gasUsed"`
	GasLimit     string  `json:"gasLimit"`
	BaseFee      string  `json:"baseFeePerGas"`
	Transactions []rawTx `json:"transactions"`
}

type rawTx struct {
	Hash     string `json:"hash"`
	TxIndex  string `json:"transactionIndex"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
	Nonce    string `json:"nonce"`
}

type rawReceipt struct {
	TxHash          string   `json:"transactionHash"`
	GasUsed         string   `json:"gasUsed"`
	Status          string   `json:"status"`
	ContractAddress string   `json:"contractAddress"`
	Logs            []rawLog `json:"logs"`
}

type rawLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex string   `json:"logIndex"`
}

func assemble(rawBlockJSON, rawReceiptsJSON json.RawMessage) (*FetchResult, error) {
	var rb rawBlock
	if err := json.Unmarshal(rawBlockJSON, &rb); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}

	var receipts []rawReceipt
	if err := json.Unmarshal(rawReceiptsJSON, &receipts); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}

	receiptByHash := make(map[string]rawReceipt, len(receipts))
	for _, r := range receipts {
		receiptByHash[r.TxHash] = r
	}

	number, err := hexToUint64(rb.Number)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	sec, err := hexToUint64(rb.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("block timestamp: %w", err)
	}

	block := domain.Block{
		Number:     number,
		Hash:       rb.Hash,
		ParentHash: rb.ParentHash,
		Timestamp:  time.Unix(int64(sec), 0).UTC(),
		GasUsed:    hexToDecimalString(rb.GasUsed),
		GasLimit:   hexToDecimalString(rb.GasLimit),
		BaseFee:    hexToDecimalString(rb.BaseFee),
	}

	txs := make([]domain.Transaction, 0, len(rb.Transactions))
	var logs []domain.Log

	for _, t := range rb.Transactions {
		receipt, ok := receiptByHash[t.Hash]
		if !ok {
			return nil, fmt.Errorf("transaction %s: no matching receipt at height %d", t.Hash, number)
		}

		txIndex, err := hexToUint64(t.TxIndex)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: index: %w", t.Hash, err)
		}
		gasUsed, err := hexToUint64(receipt.GasUsed)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: gasUsed: %w", t.Hash, err)
		}
		nonce, err := hexToUint64(t.Nonce)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: nonce: %w", t.Hash, err)
		}
		status, err := hexToUint64(receipt.Status)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: status: %w", t.Hash, err)
		}

		txs = append(txs, domain.Transaction{
			Hash:            t.Hash,
			BlockNumber:     number,
			BlockHash:       rb.Hash,
			TxIndex:         int(txIndex),
			From:            t.From,
			To:              t.To,
			Value:           hexToDecimalString(t.Value),
			GasUsed:         gasUsed,
			GasPrice:        hexToDecimalString(t.GasPrice),
			Nonce:           nonce,
			Status:          status,
			ContractAddress: receipt.ContractAddress,
		})

		for _, l := range receipt.Logs {
			logIndex, err := hexToUint64(l.LogIndex)
			if err != nil {
				return nil, fmt.Errorf("log at tx %s: index: %w", t.Hash, err)
			}
			logs = append(logs, domain.Log{
				TxHash:      t.Hash,
				LogIndex:    int(logIndex),
				BlockNumber: number,
				Address:     l.Address,
				Topic0:      topicAt(l.Topics, 0),
				Topic1:      topicAt(l.Topics, 1),
				Topic2:      topicAt(l.Topics, 2),
				Topic3:      topicAt(l.Topics, 3),
				Data:        l.Data,
			})
		}
	}

	metrics.BlocksProcessed.Inc()

	return &FetchResult{Block: block, Txs: txs, Logs: logs}, nil
}

func topicAt(topics []string, i int) string {
	if i >= len(topics) {
		return ""
	}
	return topics[i]
}

// hexToUint64 parses a "0x..." quantity into a uint64.
func hexToUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n.Uint64(), nil
}

// hexToDecimalString parses a "0x..." quantity into its base-10 string
// form, preserving full 256-bit precision. An empty input (a field the
// node omitted, e.g. baseFeePerGas on a pre-London block) yields "".
func hexToDecimalString(s string) string {
	if s == "" {
		return ""
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return ""
	}
	return n.String()
}

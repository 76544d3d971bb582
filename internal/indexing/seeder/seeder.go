// Package seeder runs the control-plane routine that keeps the work
// queue's pending ranges caught up to the chain's finalized tip.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/evmwatch/indexer/internal/indexing/metrics"
)

// RPCClient is the subset of rpc.Client the seeder needs.
type RPCClient interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Queue is the subset of queue.Queue the seeder needs.
type Queue interface {
	Seed(ctx context.Context, target uint64) error
}

// Seeder polls the chain's finalized height and advances the work queue's
// pending ranges to match. Seed is idempotent, so running more than one
// Seeder is safe though wasteful.
type Seeder struct {
	client   RPCClient
	queue    Queue
	interval time.Duration
	log      *slog.Logger
}

// New creates a Seeder that polls every interval.
func New(client RPCClient, queue Queue, interval time.Duration) *Seeder {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Seeder{
		client:   client,
		queue:    queue,
		interval: interval,
		log:      slog.Default().With("component", "seeder"),
	}
}

// Run polls and seeds on a fixed cadence until ctx is cancelled.
func (s *Seeder) Run(ctx context.Context) error {
	s.log.Info("seeder starting", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("seeder stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("seed tick failed", "error", err)
			}
		}
	}
}

func (s *Seeder) tick(ctx context.Context) error {
	tip, err := s.latestFinalized(ctx)
	if err != nil {
		return fmt.Errorf("get finalized tip: %w", err)
	}

	metrics.ChainLatestBlock.Set(float64(tip))

	if err := s.queue.Seed(ctx, tip); err != nil {
		return fmt.Errorf("seed to %d: %w", tip, err)
	}
	return nil
}

type finalizedBlock struct {
	Number string `json:"number"`
}

// latestFinalized prefers eth_getBlockByNumber("finalized", false); nodes
// that predate the finalized tag reject it, so a plain eth_blockNumber
// call covers them.
func (s *Seeder) latestFinalized(ctx context.Context) (uint64, error) {
	raw, err := s.client.Call(ctx, "eth_getBlockByNumber", "finalized", false)
	if err == nil {
		var fb finalizedBlock
		if uerr := json.Unmarshal(raw, &fb); uerr == nil && fb.Number != "" {
			return hexToUint64(fb.Number)
		}
	}

	raw, err = s.client.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	var hexNum string
	if err := json.Unmarshal(raw, &hexNum); err != nil {
		return 0, fmt.Errorf("decode block number: %w", err)
	}
	return hexToUint64(hexNum)
}

func hexToUint64(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n.Uint64(), nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/evmwatch/indexer/internal/coordination/queue"
	redisclient "github.com/evmwatch/indexer/internal/coordination/redis"
)

var seedCmd = &cobra.Command{
	Use:   "seed [target_block]",
	Short: "Manually advance the queue's pending work up to target_block",
	Args:  cobra.ExactArgs(1),
	Run:   runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	target, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid target block: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	redisClient, err := redisclient.NewClient(redisclient.Config{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	q := queue.New(
		redisClient.RDB(),
		redisClient.Blocking(),
		cfg.Queue.BatchSize,
		cfg.Queue.LeaseTTL,
		cfg.Queue.MinBlock,
		cfg.Queue.DeadLetterThreshold,
	)

	if err := q.Seed(ctx, target); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("seeded work queue up to block %d\n", target)
}

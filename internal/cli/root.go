// Package cli implements the indexer's command-line surface: the "run"
// command that starts the supervisor, plus operator tooling ("status",
// "seed") that talks to Postgres/Redis directly without starting a worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/evmwatch/indexer/internal/control"
	"github.com/evmwatch/indexer/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "EVM blockchain indexer",
	Long:  "indexer coordinates workers that fetch blocks over JSON-RPC and persist them to Postgres.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the supervisor: workers, seeder, janitor, and health server",
	Run:   runIndexer,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogging(cfg *config.AppConfig) {
	slogLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

func runIndexer(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	initLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor, err := control.NewSupervisor(ctx, *cfg)
	if err != nil {
		slog.Error("failed to initialize supervisor", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	startErr := make(chan error, 1)
	go func() {
		startErr <- supervisor.Start(ctx)
	}()

	slog.Info("indexer started", "config", cfgPath)

	supervisorExited := false
	var supervisorErr error
	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-startErr:
		supervisorExited = true
		supervisorErr = err
		if err != nil {
			slog.Error("supervisor exited", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := supervisor.Stop(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
		os.Exit(1)
	}

	if !supervisorExited {
		<-startErr
	}
	if supervisorErr != nil {
		os.Exit(1)
	}
	slog.Info("indexer stopped gracefully")
}

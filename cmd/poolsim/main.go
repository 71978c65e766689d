package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "Constant-product pool settlement engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an operations file against a fresh pool",
		RunE:  runReplay,
	}

	addPoolFlags(replayCmd)
	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("events-out", "./data/events.jsonl", "output pool events JSONL")
	replayCmd.Flags().String("errors-out", "./data/replay_errors.jsonl", "failed operations JSONL")
	replayCmd.Flags().String("report", "./data/report.json", "final report path")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events")
	replayCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for event writes")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate pool events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("rpc", "", "optional RPC URL for token decimals")
	aggregateCmd.Flags().String("in", "./data/events.jsonl", "input pool events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the pool configuration and asset metadata",
		RunE:  runDescribe,
	}

	addPoolFlags(describeCmd)
	describeCmd.Flags().String("rpc", "", "optional RPC URL for ERC20 metadata")
	describeCmd.Flags().String("report", "", "optional replay report to include")
	describeCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(describeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "transparent", "pool mode (transparent, confidential)")
	cmd.Flags().String("pool-address", "", "pool address")
	cmd.Flags().String("asset-a", "", "asset A address")
	cmd.Flags().String("asset-b", "", "asset B address")
	cmd.Flags().String("owner", "", "initial pool owner")
	cmd.Flags().String("ledger-address", "", "confidential ledger address")
	cmd.Flags().Uint16("fee-bps", 30, "swap fee in basis points")
	cmd.Flags().Duration("quote-ttl", 2*time.Minute, "confidential quote ticket lifetime")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

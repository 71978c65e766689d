package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolEngine/internal/config"
	"poolEngine/internal/model"
	"poolEngine/internal/pool"
	"poolEngine/internal/replay"
	"poolEngine/internal/storage"
	"poolEngine/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	poolCfg, ledgerAddr, err := poolConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventSink := storage.NewJsonlStorage(cfg.EventsOut)
	sinks := storage.Fanout{eventSink}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.UpsertPools(ctx, []model.Pool{{
			Address:      poolCfg.Address.Hex(),
			AssetA:       poolCfg.AssetA.Hex(),
			AssetB:       poolCfg.AssetB.Hex(),
			Confidential: cfg.Mode == replay.ModeConfidential,
		}}); err != nil {
			return fmt.Errorf("register pool: %w", err)
		}
		sinks = append(sinks, store)
	}

	runner, err := replay.NewRunner(replay.RunConfig{
		Mode:          cfg.Mode,
		Pool:          poolCfg,
		LedgerAddress: ledgerAddr,
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		ReportPath:    cfg.Report,
	}, sinks, storage.NewJsonlStorage(cfg.ErrorsOut), logger)
	if err != nil {
		return err
	}

	logger.Info("replay start",
		zap.String("mode", cfg.Mode),
		zap.String("input", cfg.Input),
		zap.String("pool", poolCfg.Address.Hex()),
		zap.Uint16("fee_bps", poolCfg.FeeBps),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("events_out", cfg.EventsOut),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	report, err := runner.Run(ctx, cfg.Input)
	if err != nil {
		return err
	}

	logger.Info("replay complete",
		zap.Int("total", report.Total),
		zap.Int("applied", report.Applied),
		zap.Int("failed", report.Failed),
		zap.Int("events", report.Events),
		zap.Uint64("version", report.Snapshot.Version),
		zap.String("report", cfg.Report),
	)
	return nil
}

// poolConfig validates the pool identity settings. The ledger address is
// only required in confidential mode.
func poolConfig(cfg config.Config) (pool.Config, common.Address, error) {
	pc := pool.Config{FeeBps: cfg.FeeBps, QuoteTTL: cfg.QuoteTTL}
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"pool-address", cfg.PoolAddress, &pc.Address},
		{"asset-a", cfg.AssetA, &pc.AssetA},
		{"asset-b", cfg.AssetB, &pc.AssetB},
		{"owner", cfg.Owner, &pc.Owner},
	}
	for _, f := range fields {
		addr, err := replay.ParseAddress(f.value)
		if err != nil {
			return pool.Config{}, common.Address{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = addr
	}

	var ledgerAddr common.Address
	if cfg.Mode == replay.ModeConfidential {
		addr, err := replay.ParseAddress(cfg.LedgerAddress)
		if err != nil {
			return pool.Config{}, common.Address{}, fmt.Errorf("ledger-address: %w", err)
		}
		ledgerAddr = addr
	}
	return pc, ledgerAddr, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolEngine/internal/chain"
	"poolEngine/internal/config"
	"poolEngine/internal/model"
	"poolEngine/internal/replay"
	"poolEngine/internal/token"
)

type description struct {
	Mode          string              `json:"mode"`
	Pool          string              `json:"pool"`
	Owner         string              `json:"owner"`
	LedgerAddress string              `json:"ledger_address,omitempty"`
	FeeBps        uint16              `json:"fee_bps"`
	QuoteTTL      string              `json:"quote_ttl,omitempty"`
	ChainID       string              `json:"chain_id,omitempty"`
	LatestBlock   uint64              `json:"latest_block,omitempty"`
	AssetA        model.TokenMeta     `json:"asset_a"`
	AssetB        model.TokenMeta     `json:"asset_b"`
	Holdings      map[string]string   `json:"holdings,omitempty"`
	Snapshot      *model.PoolSnapshot `json:"snapshot,omitempty"`
}

func runDescribe(cmd *cobra.Command, _ []string) error {
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

	poolCfg, ledgerAddr, err := poolConfig(cfg)
	if err != nil {
		return err
	}

	out := description{
		Mode:   cfg.Mode,
		Pool:   poolCfg.Address.Hex(),
		Owner:  poolCfg.Owner.Hex(),
		FeeBps: poolCfg.FeeBps,
		AssetA: model.TokenMeta{Address: poolCfg.AssetA.Hex()},
		AssetB: model.TokenMeta{Address: poolCfg.AssetB.Hex()},
	}
	if cfg.Mode == replay.ModeConfidential {
		out.LedgerAddress = ledgerAddr.Hex()
		out.QuoteTTL = poolCfg.QuoteTTL.String()
	}

	if cfg.RPCURL != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := describeAssets(ctx, cfg.RPCURL, poolCfg.Address, poolCfg.AssetA, poolCfg.AssetB, &out, logger); err != nil {
			return err
		}
	}

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		report, err := replay.ReadReport(reportPath)
		if err != nil {
			return err
		}
		out.Snapshot = &report.Snapshot
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// describeAssets fills chain metadata and the on-chain balances held at the
// pool address.
func describeAssets(ctx context.Context, rpcURL string, poolAddr, assetA, assetB common.Address, out *description, logger *zap.Logger) error {
	chainClient, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	out.ChainID = chainID.String()

	if out.LatestBlock, err = chainClient.LatestBlockNumber(ctx); err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	resolver := token.NewResolver(chainClient, logger)
	if out.AssetA, err = resolver.Meta(ctx, assetA); err != nil {
		return fmt.Errorf("asset a metadata: %w", err)
	}
	if out.AssetB, err = resolver.Meta(ctx, assetB); err != nil {
		return fmt.Errorf("asset b metadata: %w", err)
	}

	out.Holdings = make(map[string]string, 2)
	for _, meta := range []model.TokenMeta{out.AssetA, out.AssetB} {
		balance, err := token.BalanceOf(ctx, chainClient, common.HexToAddress(meta.Address), poolAddr, nil)
		if err != nil {
			logger.Warn("pool balance", zap.String("token", meta.Address), zap.Error(err))
			continue
		}
		out.Holdings[meta.Address] = balance.String()
	}
	return nil
}

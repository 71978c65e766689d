package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolEngine/internal/model"
)

// Store receives pool registrations and window metrics.
type Store interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// DecimalsResolver looks up token decimals used to format amounts.
type DecimalsResolver interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	Checkpoints   CheckpointStore
}

// Aggregator buckets pool events into fixed windows.
type Aggregator struct {
	cfg          Config
	store        Store
	decimals     DecimalsResolver
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool

	// flushed is the last seq per pool folded into a flushed window.
	flushed map[string]uint64
}

// NewAggregator builds an aggregator. A nil resolver leaves amounts in base
// units.
func NewAggregator(cfg Config, store Store, decimals DecimalsResolver, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		decimals:     decimals,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
		flushed:      make(map[string]uint64),
	}
}

// Run executes aggregation over a pool events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	checkpoint, err := a.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	for pool, seq := range checkpoint.Seq {
		a.flushed[pool] = seq
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 16)
	maxTs := checkpoint.Timestamp
	var total, windows, skipped, failed int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var event model.PoolEvent
		if err := json.Unmarshal(line, &event); err != nil {
			failed++
			a.logger.Warn("decode pool event", zap.Error(err))
			continue
		}

		if checkpoint.Done(event) {
			skipped++
			continue
		}

		windowStart := windowStart(event.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(event.Pool)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(event, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			batch = append(batch, metrics)
			windows++
			if pool != nil {
				pools = append(pools, *pool)
			}
			next := NewAccumulator(event, windowStart, windowEnd)
			next.ReserveA, next.ReserveB = acc.ReserveA, acc.ReserveB
			acc = next
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(event); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", event.Pool), zap.String("kind", string(event.Kind)))
			continue
		}

		if event.Timestamp > maxTs {
			maxTs = event.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(ctx, acc)
		batch = append(batch, metrics)
		windows++
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadCheckpoint(ctx context.Context) (Checkpoint, error) {
	if a.cfg.RecomputeFrom > 0 {
		return Checkpoint{Timestamp: a.cfg.RecomputeFrom - 1}, nil
	}
	if a.cfg.Checkpoints == nil {
		return Checkpoint{}, nil
	}
	cp, ok, err := a.cfg.Checkpoints.Load(ctx)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return Checkpoint{}, nil
	}
	return cp, nil
}

// saveState records everything up to the oldest open window. Open windows
// are re-read on the next run.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.Checkpoints == nil {
		return nil
	}

	seq := make(map[string]uint64, len(a.flushed))
	for pool, last := range a.flushed {
		seq[pool] = last
	}
	cp := Checkpoint{Timestamp: a.cfg.RecomputeFrom, Seq: seq}
	if len(a.accumulators) > 0 {
		if safeTs := minOpenWindowStart(a.accumulators); safeTs > 1 {
			cp.Timestamp = safeTs - 1
		}
	}
	if err := a.cfg.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (model.PoolWindowMetrics, *model.Pool) {
	poolRecord := a.registerPool(acc)
	if key := poolKey(acc.PoolAddress); acc.LastSeq > a.flushed[key] {
		a.flushed[key] = acc.LastSeq
	}

	metrics := model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        "0",
		VolumeB:        "0",
		FeeA:           "0",
		FeeB:           "0",
		Confidential:   acc.Confidential,
	}
	if acc.Confidential {
		return metrics, poolRecord
	}

	decimalsA := a.tokenDecimals(ctx, acc.AssetA)
	decimalsB := a.tokenDecimals(ctx, acc.AssetB)

	metrics.VolumeA = formatTokenAmount(acc.VolumeA, decimalsA)
	metrics.VolumeB = formatTokenAmount(acc.VolumeB, decimalsB)
	metrics.FeeA = formatTokenAmount(acc.FeeA, decimalsA)
	metrics.FeeB = formatTokenAmount(acc.FeeB, decimalsB)
	if acc.ReserveA != nil && acc.ReserveB != nil {
		reserveA := formatTokenAmount(acc.ReserveA, decimalsA)
		reserveB := formatTokenAmount(acc.ReserveB, decimalsB)
		metrics.ReserveA = &reserveA
		metrics.ReserveB = &reserveB
	}

	metrics.FeeRateA, metrics.FeeRateB = computeFeeRates(acc.FeeA, acc.FeeB, acc.ReserveA, acc.ReserveB)
	metrics.APR = computeAPR(metrics.FeeRateA, metrics.FeeRateB, a.cfg.WindowSeconds)

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		Address:      acc.PoolAddress,
		AssetA:       acc.AssetA,
		AssetB:       acc.AssetB,
		Confidential: acc.Confidential,
		FirstVersion: acc.FirstVersion,
	}

	existing, ok := a.poolSeen[key]
	if ok && existing.FirstVersion <= pool.FirstVersion {
		return nil
	}

	a.poolSeen[key] = pool
	return &pool
}

// tokenDecimals returns 0 (base units) when no resolver is configured or the
// lookup fails.
func (a *Aggregator) tokenDecimals(ctx context.Context, token string) uint8 {
	if a.decimals == nil {
		return 0
	}
	if !common.IsHexAddress(token) {
		a.logger.Warn("invalid token address", zap.String("token", token))
		return 0
	}
	decimals, err := a.decimals.Decimals(ctx, common.HexToAddress(token))
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
		return 0
	}
	return decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

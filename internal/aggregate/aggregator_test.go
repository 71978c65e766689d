package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolEngine/internal/model"
)

const (
	poolP  = "0x00000000000000000000000000000000000000a1"
	poolQ  = "0x00000000000000000000000000000000000000a2"
	assetA = "0x000000000000000000000000000000000000000a"
	assetB = "0x000000000000000000000000000000000000000b"
)

type memoryStore struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
}

func (m *memoryStore) UpsertPools(_ context.Context, pools []model.Pool) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memoryStore) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	m.metrics = append(m.metrics, metrics...)
	return nil
}

func (m *memoryStore) window(pool string, start int64) (model.PoolWindowMetrics, bool) {
	for _, metric := range m.metrics {
		if metric.PoolAddress == pool && metric.WindowStart.Unix() == start {
			return metric, true
		}
	}
	return model.PoolWindowMetrics{}, false
}

type fixedDecimals map[common.Address]uint8

func (f fixedDecimals) Decimals(_ context.Context, token common.Address) (uint8, error) {
	d, ok := f[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return d, nil
}

func swapEvent(pool string, seq, ts uint64, dir model.Direction, in, fee, ra, rb string) model.PoolEvent {
	return model.PoolEvent{
		Pool: pool, Seq: seq, Version: seq, Kind: model.EventSwap,
		AssetA: assetA, AssetB: assetB, Timestamp: ts,
		Swap: &model.SwapEventData{Direction: dir, AmountIn: in, FeeAmount: fee, ReserveA: ra, ReserveB: rb},
	}
}

func writeEvents(t *testing.T, events []model.PoolEvent, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	var data []byte
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal event: %v", err)
		}
		data = append(data, line...)
		data = append(data, '\n')
	}
	for _, line := range extra {
		data = append(data, line...)
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	return path
}

func sampleEvents() []model.PoolEvent {
	return []model.PoolEvent{
		{
			Pool: poolP, Seq: 1, Version: 1, Kind: model.EventAddLiquidity,
			AssetA: assetA, AssetB: assetB, Timestamp: 100,
			Liquidity: &model.LiquidityEventData{AmountA: "1000", AmountB: "1000", ReserveA: "1000", ReserveB: "1000"},
		},
		swapEvent(poolP, 2, 110, model.AToB, "100", "3", "1100", "910"),
		swapEvent(poolP, 3, 130, model.BToA, "50", "1", "1048", "960"),
		swapEvent(poolP, 4, 200, model.AToB, "10", "0", "1058", "951"),
		{
			Pool: poolQ, Seq: 1, Version: 3, Kind: model.EventSwap, Confidential: true,
			AssetA: assetA, AssetB: assetB, Timestamp: 110,
			Swap: &model.SwapEventData{Direction: model.AToB, AmountInHandle: "0x01", AmountOutHandle: "0x02"},
		},
	}
}

func TestAggregatorWindows(t *testing.T) {
	path := writeEvents(t, sampleEvents(), "not json")
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 60, BatchSize: 10}, store, nil, nil)

	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.metrics) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(store.metrics))
	}
	if len(store.pools) != 2 {
		t.Fatalf("expected 2 pool registrations, got %d", len(store.pools))
	}

	first, ok := store.window(poolP, 60)
	if !ok {
		t.Fatalf("missing window 60")
	}
	if first.SwapCount != 1 || first.VolumeA != "100" || first.VolumeB != "0" || first.FeeA != "3" {
		t.Fatalf("unexpected window 60: %+v", first)
	}
	if first.ReserveA == nil || *first.ReserveA != "1100" || *first.ReserveB != "910" {
		t.Fatalf("unexpected closing reserves: %v %v", first.ReserveA, first.ReserveB)
	}
	if first.FeeRateA == nil || first.FeeRateB != nil || first.APR == nil {
		t.Fatalf("expected fee rate on side a only and an apr")
	}

	second, ok := store.window(poolP, 120)
	if !ok {
		t.Fatalf("missing window 120")
	}
	if second.SwapCount != 1 || second.VolumeB != "50" || second.FeeB != "1" || *second.ReserveA != "1048" {
		t.Fatalf("unexpected window 120: %+v", second)
	}

	third, ok := store.window(poolP, 180)
	if !ok {
		t.Fatalf("missing window 180")
	}
	if third.FeeRateA != nil || third.APR != nil {
		t.Fatalf("zero fee must not produce a rate")
	}

	conf, ok := store.window(poolQ, 60)
	if !ok {
		t.Fatalf("missing confidential window")
	}
	if !conf.Confidential || conf.SwapCount != 1 || conf.VolumeA != "0" || conf.ReserveA != nil || conf.APR != nil {
		t.Fatalf("confidential window leaked amounts: %+v", conf)
	}
}

func TestAggregatorCarriesReserves(t *testing.T) {
	events := []model.PoolEvent{
		swapEvent(poolP, 1, 10, model.AToB, "5", "0", "105", "96"),
		{
			Pool: poolP, Seq: 2, Version: 2, Kind: model.EventFeeUpdated,
			AssetA: assetA, AssetB: assetB, Timestamp: 70,
		},
	}
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 60}, store, nil, nil)
	if err := agg.Run(context.Background(), writeEvents(t, events)); err != nil {
		t.Fatalf("run: %v", err)
	}

	idle, ok := store.window(poolP, 60)
	if !ok {
		t.Fatalf("missing window 60")
	}
	if idle.SwapCount != 0 || idle.ReserveA == nil || *idle.ReserveA != "105" {
		t.Fatalf("expected carried reserves, got %+v", idle)
	}
}

func TestAggregatorFormatsDecimals(t *testing.T) {
	store := &memoryStore{}
	resolver := fixedDecimals{common.HexToAddress(assetA): 2}
	agg := NewAggregator(Config{WindowSeconds: 60}, store, resolver, nil)
	events := []model.PoolEvent{swapEvent(poolP, 1, 10, model.AToB, "150", "3", "1150", "870")}

	if err := agg.Run(context.Background(), writeEvents(t, events)); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, ok := store.window(poolP, 0)
	if !ok {
		t.Fatalf("missing window")
	}
	if got.VolumeA != "1.50" || got.FeeA != "0.03" || *got.ReserveA != "11.50" {
		t.Fatalf("unexpected formatting: %+v", got)
	}
	if *got.ReserveB != "870" {
		t.Fatalf("unresolved token should stay in base units, got %s", *got.ReserveB)
	}
}

func TestAggregatorResumesFromState(t *testing.T) {
	path := writeEvents(t, sampleEvents())
	state := &FileCheckpointStore{Path: filepath.Join(t.TempDir(), "state", "aggregate.json")}

	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 60, Checkpoints: state}, store, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("first run: %v", err)
	}

	cp, ok, err := state.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load state: %v %v", ok, err)
	}
	if cp.Timestamp != 200 {
		t.Fatalf("expected state 200, got %d", cp.Timestamp)
	}
	if cp.Seq[poolP] != 4 || cp.Seq[poolQ] != 1 {
		t.Fatalf("unexpected pool seq %v", cp.Seq)
	}

	rerun := &memoryStore{}
	agg = NewAggregator(Config{WindowSeconds: 60, Checkpoints: state}, rerun, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rerun.metrics) != 0 {
		t.Fatalf("expected no windows on rerun, got %d", len(rerun.metrics))
	}

	recompute := &memoryStore{}
	agg = NewAggregator(Config{WindowSeconds: 60, Checkpoints: state, RecomputeFrom: 120}, recompute, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("recompute run: %v", err)
	}
	if len(recompute.metrics) != 2 {
		t.Fatalf("expected 2 windows from 120, got %d", len(recompute.metrics))
	}
}

func TestAggregatorPicksUpEventsAtCheckpointTimestamp(t *testing.T) {
	events := sampleEvents()
	state := &FileCheckpointStore{Path: filepath.Join(t.TempDir(), "aggregate.json")}

	agg := NewAggregator(Config{WindowSeconds: 60, Checkpoints: state}, &memoryStore{}, nil, nil)
	if err := agg.Run(context.Background(), writeEvents(t, events)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Same second as the last processed event, later in the pool's sequence.
	events = append(events, swapEvent(poolP, 5, 200, model.AToB, "20", "0", "1078", "933"))
	rerun := &memoryStore{}
	agg = NewAggregator(Config{WindowSeconds: 60, Checkpoints: state}, rerun, nil, nil)
	if err := agg.Run(context.Background(), writeEvents(t, events)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rerun.metrics) != 1 {
		t.Fatalf("expected 1 window, got %d", len(rerun.metrics))
	}
	got, ok := rerun.window(poolP, 180)
	if !ok {
		t.Fatalf("missing window 180")
	}
	if got.SwapCount != 1 || got.VolumeA != "20" {
		t.Fatalf("unexpected window %+v", got)
	}

	cp, _, err := state.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if cp.Seq[poolP] != 5 {
		t.Fatalf("expected seq 5 for pool, got %d", cp.Seq[poolP])
	}
}

type recordingCheckpoints struct {
	saved []Checkpoint
}

func (r *recordingCheckpoints) Load(context.Context) (Checkpoint, bool, error) {
	return Checkpoint{}, false, nil
}

func (r *recordingCheckpoints) Save(_ context.Context, cp Checkpoint) error {
	r.saved = append(r.saved, cp)
	return nil
}

func TestAggregatorCheckpointStopsAtOpenWindow(t *testing.T) {
	path := writeEvents(t, sampleEvents())
	rec := &recordingCheckpoints{}
	agg := NewAggregator(Config{WindowSeconds: 60, BatchSize: 1, Checkpoints: rec}, &memoryStore{}, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []Checkpoint{
		{Timestamp: 119, Seq: map[string]uint64{poolP: 2}},
		{Timestamp: 179, Seq: map[string]uint64{poolP: 3}},
		{Timestamp: 200, Seq: map[string]uint64{poolP: 4, poolQ: 1}},
	}
	if len(rec.saved) != len(want) {
		t.Fatalf("expected %d saves, got %d: %+v", len(want), len(rec.saved), rec.saved)
	}
	for i := range want {
		if !reflect.DeepEqual(rec.saved[i], want[i]) {
			t.Fatalf("save %d: expected %+v, got %+v", i, want[i], rec.saved[i])
		}
	}
}

func TestCheckpointDone(t *testing.T) {
	cp := Checkpoint{Timestamp: 150, Seq: map[string]uint64{poolP: 3}}

	cases := []struct {
		name  string
		event model.PoolEvent
		done  bool
	}{
		{"seq covered", model.PoolEvent{Pool: poolP, Seq: 3, Timestamp: 400}, true},
		{"seq ahead before timestamp", model.PoolEvent{Pool: poolP, Seq: 4, Timestamp: 100}, false},
		{"pool address case", model.PoolEvent{Pool: "0x00000000000000000000000000000000000000A1", Seq: 2}, true},
		{"no seq entry at timestamp", model.PoolEvent{Pool: poolQ, Seq: 9, Timestamp: 150}, true},
		{"no seq entry after timestamp", model.PoolEvent{Pool: poolQ, Seq: 1, Timestamp: 151}, false},
	}
	for _, tc := range cases {
		if got := cp.Done(tc.event); got != tc.done {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.done, got)
		}
	}
}

func TestFileCheckpointStoreMissingFile(t *testing.T) {
	state := &FileCheckpointStore{Path: filepath.Join(t.TempDir(), "absent.json")}
	cp, ok, err := state.Load(context.Background())
	if err != nil || ok {
		t.Fatalf("expected no checkpoint, got %+v %v %v", cp, ok, err)
	}

	var empty *FileCheckpointStore
	if err := empty.Save(context.Background(), Checkpoint{Timestamp: 1}); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
}

func TestAggregatorRequiresWindow(t *testing.T) {
	agg := NewAggregator(Config{}, &memoryStore{}, nil, nil)
	if err := agg.Run(context.Background(), "missing.jsonl"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestComputeAPR(t *testing.T) {
	rate := "0.001000000000000000"
	apr := computeAPR(&rate, nil, 365*24*3600)
	if apr == nil || *apr != "0.000500000000000000" {
		t.Fatalf("unexpected apr %v", apr)
	}
	both := computeAPR(&rate, &rate, 365*24*3600)
	if both == nil || *both != "0.001000000000000000" {
		t.Fatalf("unexpected apr %v", both)
	}
	if computeAPR(nil, nil, 60) != nil {
		t.Fatalf("expected nil apr")
	}
}

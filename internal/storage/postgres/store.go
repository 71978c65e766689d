package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolEngine/internal/model"
)

// Store provides Postgres persistence for pool events and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEvents inserts pool events. Re-inserting the same (pool, seq) is a
// no-op.
func (s *Store) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := eventPayload(e)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		batch.Queue(`
			INSERT INTO pool_events (
				pool_address, seq, version, kind, actor, asset_a, asset_b, confidential, event_ts, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (pool_address, seq) DO NOTHING
		`,
			e.Pool,
			int64(e.Seq),
			int64(e.Version),
			string(e.Kind),
			e.Actor,
			e.AssetA,
			e.AssetB,
			e.Confidential,
			time.Unix(int64(e.Timestamp), 0).UTC(),
			payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPools inserts or updates pool registrations.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, asset_a, asset_b, confidential, first_version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				asset_a = EXCLUDED.asset_a,
				asset_b = EXCLUDED.asset_b,
				confidential = EXCLUDED.confidential,
				first_version = LEAST(pools.first_version, EXCLUDED.first_version),
				updated_at = now()
		`,
			pool.Address,
			pool.AssetA,
			pool.AssetB,
			pool.Confidential,
			int64(pool.FirstVersion),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_a, volume_b, fee_a, fee_b, fee_rate_a, fee_rate_b,
				reserve_a, reserve_b, apr, confidential, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			ON CONFLICT (pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				fee_rate_a = EXCLUDED.fee_rate_a,
				fee_rate_b = EXCLUDED.fee_rate_b,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				apr = EXCLUDED.apr,
				confidential = EXCLUDED.confidential,
				updated_at = now()
		`,
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeA,
			m.VolumeB,
			m.FeeA,
			m.FeeB,
			m.FeeRateA,
			m.FeeRateB,
			m.ReserveA,
			m.ReserveB,
			m.APR,
			m.Confidential,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadProgress returns the checkpoint stored under name: the last processed
// timestamp and the last aggregated seq per pool.
func (s *Store) LoadProgress(ctx context.Context, name string) (uint64, map[string]uint64, bool, error) {
	if name == "" {
		return 0, nil, false, fmt.Errorf("state name required")
	}
	var (
		ts  int64
		raw []byte
	)
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts, pool_seq FROM engine_state WHERE name=$1`, name)
	if err := row.Scan(&ts, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	var seq map[string]uint64
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &seq); err != nil {
			return 0, nil, false, fmt.Errorf("decode pool_seq for %s: %w", name, err)
		}
	}
	return uint64(ts), seq, true, nil
}

// SaveProgress upserts the checkpoint stored under name.
func (s *Store) SaveProgress(ctx context.Context, name string, ts uint64, seq map[string]uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	if seq == nil {
		seq = map[string]uint64{}
	}
	raw, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("encode pool_seq: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_state (name, last_processed_ts, pool_seq, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts,
		    pool_seq = EXCLUDED.pool_seq,
		    updated_at = now()
	`, name, int64(ts), raw)
	return err
}

// eventPayload returns the kind-specific part of an event as JSON.
func eventPayload(e model.PoolEvent) ([]byte, error) {
	switch {
	case e.Swap != nil:
		return json.Marshal(e.Swap)
	case e.Liquidity != nil:
		return json.Marshal(e.Liquidity)
	case e.Governance != nil:
		return json.Marshal(e.Governance)
	default:
		return []byte("{}"), nil
	}
}

package aggregate

import (
	"context"

	"poolEngine/internal/storage/postgres"
)

// DBCheckpointStore keeps the checkpoint in the engine_state row called Name,
// so one database can serve aggregators of several window sizes.
type DBCheckpointStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBCheckpointStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	if s == nil || s.Store == nil {
		return Checkpoint{}, false, nil
	}
	ts, seq, ok, err := s.Store.LoadProgress(ctx, s.Name)
	if err != nil || !ok {
		return Checkpoint{}, ok, err
	}
	return Checkpoint{Timestamp: ts, Seq: seq}, true, nil
}

func (s *DBCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveProgress(ctx, s.Name, cp.Timestamp, cp.Seq)
}

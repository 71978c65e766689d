package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"poolEngine/internal/model"
)

// Checkpoint records how far aggregation got. Seq holds, per pool, the last
// event seq folded into a stored window; pools without an entry fall back to
// Timestamp.
type Checkpoint struct {
	Timestamp uint64
	Seq       map[string]uint64
}

// Done reports whether event was already aggregated.
func (c Checkpoint) Done(event model.PoolEvent) bool {
	if seq, ok := c.Seq[poolKey(event.Pool)]; ok {
		return event.Seq <= seq
	}
	return event.Timestamp <= c.Timestamp
}

// CheckpointStore persists a Checkpoint between runs.
type CheckpointStore interface {
	Load(ctx context.Context) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// FileCheckpointStore keeps the checkpoint in a JSON file, replaced
// atomically on save.
type FileCheckpointStore struct {
	Path string
}

type checkpointFile struct {
	Timestamp uint64            `json:"last_processed_ts"`
	PoolSeq   map[string]uint64 `json:"pool_seq,omitempty"`
	SavedAt   time.Time         `json:"saved_at"`
}

func (s *FileCheckpointStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	if s == nil || s.Path == "" {
		return Checkpoint{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var rec checkpointFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", s.Path, err)
	}
	return Checkpoint{Timestamp: rec.Timestamp, Seq: rec.PoolSeq}, true, nil
}

func (s *FileCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(checkpointFile{
		Timestamp: cp.Timestamp,
		PoolSeq:   cp.Seq,
		SavedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create checkpoint tmp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

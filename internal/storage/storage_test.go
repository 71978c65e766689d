package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"poolEngine/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	first := []model.PoolEvent{{Pool: "0x1", Version: 1, Kind: model.EventAddLiquidity}}
	second := []model.PoolEvent{{Pool: "0x1", Version: 2, Kind: model.EventSwap, Swap: &model.SwapEventData{Direction: model.AToB, AmountIn: "10"}}}
	if err := s.PutEvents(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := s.PutEvents(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if err := s.PutEvents(ctx, nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.PoolEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e model.PoolEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[1].Swap == nil || got[1].Swap.Direction != model.AToB {
		t.Fatalf("swap payload lost: %+v", got[1])
	}
}

func TestJsonlStoragePutErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.jsonl")
	s := NewJsonlStorage(path)
	if err := s.PutErrors(context.Background(), []model.OperationError{{Line: 3, Op: model.OpSwap, Error: "boom"}}); err != nil {
		t.Fatalf("put errors: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec model.OperationError
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Line != 3 || rec.Error != "boom" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

type failingSink struct{ err error }

func (f failingSink) PutEvents(context.Context, []model.PoolEvent) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	journal := NewJournal()
	boom := errors.New("boom")
	sink := Fanout{journal, failingSink{err: boom}, nil}

	err := sink.PutEvents(context.Background(), []model.PoolEvent{{Kind: model.EventPaused}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if journal.Len() != 1 || len(journal.Kind(model.EventPaused)) != 1 {
		t.Fatalf("journal did not receive event")
	}
}

package storage

import (
	"context"

	"poolEngine/internal/model"
)

// Storage defines a sink for committed pool events.
type Storage interface {
	PutEvents(ctx context.Context, events []model.PoolEvent) error
}

package storage

import (
	"context"
	"errors"

	"poolEngine/internal/model"
)

// Fanout writes each batch to every sink and joins their errors.
type Fanout []Storage

func (f Fanout) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

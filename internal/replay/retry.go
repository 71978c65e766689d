package replay

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"poolEngine/internal/model"
	"poolEngine/internal/storage"
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

// retryingSink retries event writes with exponential backoff.
type retryingSink struct {
	inner      storage.Storage
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
	written    atomic.Int64
}

func (s *retryingSink) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	err := withRetry(ctx, s.maxRetries, s.backoff, func(ctx context.Context) error {
		err := s.inner.PutEvents(ctx, events)
		if err != nil {
			s.logger.Warn("put events failed", zap.Error(err), zap.Int("events", len(events)))
		}
		return err
	})
	if err == nil {
		s.written.Add(int64(len(events)))
	}
	return err
}

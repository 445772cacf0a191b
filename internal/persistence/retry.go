package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/pricing"
	"go.uber.org/zap"
)

// retryRead retries fn on transient failures with a fixed backoff. Only
// idempotent reads go through here.
func retryRead[T any](ctx context.Context, c *Coordinator, op string, fn func(context.Context) (T, error)) (T, error) {
	tuning := c.engine.Get().Persistence
	var zero T
	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, domain.ErrTransient) || attempt >= tuning.ReadRetries {
			return zero, err
		}
		c.log.Warn("remote read failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(tuning.ReadBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Coordinator) getOrder(ctx context.Context, id string) (domain.Order, error) {
	found, err := retryRead(ctx, c, "get_order", func(ctx context.Context) (*domain.Order, error) {
		return c.remote.GetOrder(ctx, id)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if found == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return pricing.Reprice(*found, c.normalizer.Options()), nil
}

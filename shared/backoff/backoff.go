// Package backoff provides fixed-schedule retry strategies for
// reconnect logic.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Strategy is an explicit list of delays between attempts; the number
// of attempts is len(Delays).
type Strategy struct {
	Delays []time.Duration
}

// Quick suits gateway reconnects: a fresh identify either works within
// a few seconds or the network is down and the caller should move to
// its slow retry path.
var Quick = Strategy{
	Delays: []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	},
}

type RetryFunc func(ctx context.Context, attempt int) error

// RetryWithCallback runs fn until it succeeds or the strategy is
// exhausted, invoking onRetry before each delay.
func RetryWithCallback(ctx context.Context, strategy Strategy, fn RetryFunc, onRetry func(attempt int, err error, delay time.Duration)) error {
	var lastErr error

	for i := 0; i < len(strategy.Delays); i++ {
		if err := fn(ctx, i+1); err != nil {
			lastErr = err

			if onRetry != nil {
				onRetry(i+1, err, strategy.Delays[i])
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(strategy.Delays[i]):
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", len(strategy.Delays), lastErr)
}

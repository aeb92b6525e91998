package backoff

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Strategy{Delays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}

func TestRetrySucceedsMidway(t *testing.T) {
	attempts := 0
	err := RetryWithCallback(context.Background(), fast, func(ctx context.Context, attempt int) error {
		attempts++
		if attempt < 3 {
			return fmt.Errorf("attempt %d failed", attempt)
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	var retries []int
	err := RetryWithCallback(context.Background(), fast, func(ctx context.Context, attempt int) error {
		return fmt.Errorf("nope")
	}, func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, []int{1, 2, 3}, retries)
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryWithCallback(ctx, fast, func(ctx context.Context, attempt int) error {
		return fmt.Errorf("nope")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

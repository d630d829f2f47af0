package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	return p
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), nullLogger(), "quote", func(int) error {
		calls++
		if calls < 2 {
			return timeoutError{}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryIsBounded(t *testing.T) {
	var attempts []int
	err := fastRetry().Do(context.Background(), nullLogger(), "quote", func(attempt int) error {
		attempts = append(attempts, attempt)
		return timeoutError{}
	})
	assert.Equal(t, timeoutError{}, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("pool not found")
	err := fastRetry().Do(context.Background(), nullLogger(), "quote", func(int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Hour

	err := p.Do(ctx, nullLogger(), "quote", func(int) error {
		calls++
		cancel()
		return timeoutError{}
	})
	assert.Equal(t, timeoutError{}, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay*time.Duration(1<<1))
	assert.Equal(t, 4*time.Second, p.BaseDelay*time.Duration(1<<2))
}

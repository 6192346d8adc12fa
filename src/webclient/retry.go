package webclient

import (
	"context"
	"time"
)

const maxRetryDelay = 30 * time.Second

// Retry calls fn up to attempts times while retryable(err) holds, doubling the delay
// between calls. Use it only for idempotent calls.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	delay := initialDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if delay < maxRetryDelay {
			delay *= 2
		}
	}
	return err
}

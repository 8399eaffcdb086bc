package execution

import (
	"context"
	"fmt"
	"log"
	"time"
)

const (
	retryAttempts = 3
	retryBase     = 300 * time.Millisecond
)

// withRetry runs fn until it succeeds, the attempt budget is spent, or the
// context is cancelled. The delay starts at base and doubles per attempt.
func withRetry(ctx context.Context, label string, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Printf("[execution] %s attempt %d/%d failed, retrying in %v: %v", label, i, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, attempts, err)
}

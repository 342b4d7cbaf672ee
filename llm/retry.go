package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Retrier applies RetryConfig to provider calls. With the default config it
// runs the operation exactly once.
type Retrier struct {
	config RetryConfig

	mu   sync.Mutex
	rand *rand.Rand
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RetryOperation represents an operation that can be retried
type RetryOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs operation, retrying retryable LLM errors up to MaxRetries.
func Execute[T any](r *Retrier, ctx context.Context, operation RetryOperation[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			if attempt > 0 {
				return zero, fmt.Errorf("operation failed after %d attempts: %w", attempt+1, err)
			}
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(r.delay(attempt, err)):
		}
	}
	return zero, fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *Retrier) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxRetries {
		return false
	}
	return IsRetryableError(err)
}

// delay is exponential backoff with ±25% jitter, honoring RetryAfter.
func (r *Retrier) delay(attempt int, err error) time.Duration {
	if e, ok := AsLLMError(err); ok && e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}

	d := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt))
	r.mu.Lock()
	d += 0.25 * d * (r.rand.Float64()*2 - 1)
	r.mu.Unlock()

	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if d < float64(r.config.InitialDelay) {
		d = float64(r.config.InitialDelay)
	}
	return time.Duration(d)
}

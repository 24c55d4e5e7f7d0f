package provider

import (
	"context"
	"time"
)

// BaseProvider carries retry behaviour shared by every concrete provider,
// grounded on haasonsaas-nexus's internal/agent/providers.BaseProvider.
type BaseProvider struct {
	// Backoff is the delay between retries; doubled on each attempt.
	Backoff time.Duration
	// MaxAttempts bounds how many times Retry will call op.
	MaxAttempts int
}

// NewBaseProvider returns a BaseProvider with sensible defaults (3
// attempts, 200ms initial backoff).
func NewBaseProvider() BaseProvider {
	return BaseProvider{Backoff: 200 * time.Millisecond, MaxAttempts: 3}
}

// Retry calls op until it succeeds, isRetryable(err) returns false, the
// context is cancelled, or MaxAttempts is exhausted.
func (b BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	backoff := b.Backoff
	var lastErr error
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

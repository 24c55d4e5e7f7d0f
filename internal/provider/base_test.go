package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	b := BaseProvider{Backoff: time.Millisecond, MaxAttempts: 3}
	calls := 0
	err := b.Retry(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	b := BaseProvider{Backoff: time.Millisecond, MaxAttempts: 3}
	calls := 0
	wantErr := errors.New("permanent")
	err := b.Retry(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt for a non-retryable error, got %d", calls)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	b := BaseProvider{Backoff: time.Millisecond, MaxAttempts: 3}
	calls := 0
	wantErr := errors.New("transient")
	err := b.Retry(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryAbortsOnContextCancellation(t *testing.T) {
	b := BaseProvider{Backoff: 50 * time.Millisecond, MaxAttempts: 5}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := b.Retry(ctx, func(error) bool { return true }, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("transient")
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected the retry loop to stop after cancellation, got %d calls", calls)
	}
}

func TestNewBaseProviderDefaults(t *testing.T) {
	b := NewBaseProvider()
	if b.MaxAttempts != 3 {
		t.Errorf("expected default MaxAttempts 3, got %d", b.MaxAttempts)
	}
	if b.Backoff != 200*time.Millisecond {
		t.Errorf("expected default Backoff 200ms, got %v", b.Backoff)
	}
}

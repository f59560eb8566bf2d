package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_StopsOnSuccess(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return transient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	persistent := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		return persistent
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, persistent) {
		t.Errorf("error chain missing cause: %v", err)
	}
}

func TestRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 3, func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("calls = %d, want 0 after cancellation", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	// Jitter keeps each delay in [base/2, base); the base doubles per attempt
	// until maxDelay.
	if d := backoffDelay(0); d < 250*time.Millisecond || d >= 500*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want [250ms, 500ms)", d)
	}
	if d := backoffDelay(1); d < 500*time.Millisecond || d >= time.Second {
		t.Errorf("attempt 1 delay = %v, want [500ms, 1s)", d)
	}
	if d := backoffDelay(10); d < maxDelay/2 || d >= maxDelay {
		t.Errorf("attempt 10 delay = %v, want capped in [%v, %v)", d, maxDelay/2, maxDelay)
	}
}

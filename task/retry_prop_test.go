package task

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// The retry schedule is exponential with fixed base 30s: a task failing
// recoverably k times has next_retry_at = fail_time + 30s * 2^k, and
// the (maxRetries+1)-th failure is terminal regardless of
// recoverability.
func TestFail_RetryScheduleProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxRetries := rapid.IntRange(0, 4).Draw(rt, "maxRetries")
		s, clock := testStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, &Task{Title: "prop", MaxRetries: maxRetries})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		// Create replaces a zero MaxRetries with DefaultMaxRetries.
		maxRetries = created.MaxRetries

		for k := 0; k <= maxRetries; k++ {
			if err := s.forceReady(ctx, created.ID); err != nil {
				rt.Fatalf("force ready: %v", err)
			}
			claimed, err := s.Claim(ctx, "agent", Filter{})
			if err != nil || claimed == nil {
				rt.Fatalf("claim attempt %d: %v", k, err)
			}

			failAt := clock.Now().UTC()
			if err := s.Fail(ctx, created.ID, Failure{Message: "boom", Recoverable: true}); err != nil {
				rt.Fatalf("fail attempt %d: %v", k, err)
			}

			got, err := s.Get(ctx, created.ID)
			if err != nil {
				rt.Fatalf("get: %v", err)
			}
			if got.RetryCount != k+1 {
				rt.Fatalf("retry_count = %d, want %d", got.RetryCount, k+1)
			}

			if k < maxRetries {
				if got.Status != StatusPendingRetry {
					rt.Fatalf("after failure %d status = %s, want pending_retry", k, got.Status)
				}
				wantRetry := failAt.Add(time.Duration(1<<uint(k)) * RetryBaseDelay)
				if got.NextRetryAt == nil || !got.NextRetryAt.Equal(wantRetry) {
					rt.Fatalf("next_retry_at = %v, want %v", got.NextRetryAt, wantRetry)
				}
				// Advance past the backoff so the next claim is legal.
				clock.Advance(wantRetry.Sub(clock.Now().UTC()) + time.Second)
				if err := s.ResetForRetry(ctx, created.ID); err != nil {
					rt.Fatalf("reset for retry: %v", err)
				}
			} else {
				if got.Status != StatusFailed {
					rt.Fatalf("after final failure status = %s, want failed", got.Status)
				}
			}
		}
	})
}

// A non-recoverable failure terminates immediately, regardless of how
// many retries remain.
func TestFail_NonRecoverableAlwaysTerminalProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxRetries := rapid.IntRange(0, 5).Draw(rt, "maxRetries")
		s, _ := testStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, &Task{Title: "prop", MaxRetries: maxRetries})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		if err := s.forceReady(ctx, created.ID); err != nil {
			rt.Fatalf("force ready: %v", err)
		}
		if _, err := s.Claim(ctx, "agent", Filter{}); err != nil {
			rt.Fatalf("claim: %v", err)
		}
		if err := s.Fail(ctx, created.ID, Failure{Message: "fatal", Recoverable: false}); err != nil {
			rt.Fatalf("fail: %v", err)
		}

		got, err := s.Get(ctx, created.ID)
		if err != nil {
			rt.Fatalf("get: %v", err)
		}
		if got.Status != StatusFailed {
			rt.Fatalf("status = %s, want failed", got.Status)
		}
	})
}

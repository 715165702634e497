package graph

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	cases := []struct {
		name    string
		rp      RetryPolicy
		wantErr bool
	}{
		{"zero attempts invalid", RetryPolicy{MaxAttempts: 0, BackoffFactor: 1}, true},
		{"backoff below one invalid", RetryPolicy{MaxAttempts: 3, BackoffFactor: 0.5}, true},
		{"max interval below initial invalid", RetryPolicy{
			MaxAttempts: 3, BackoffFactor: 2, InitialInterval: time.Second, MaxInterval: time.Millisecond,
		}, true},
		{"valid policy", RetryPolicy{
			MaxAttempts: 3, BackoffFactor: 2, InitialInterval: time.Millisecond, MaxInterval: time.Second,
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rp.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 100,
		BackoffFactor:   2,
	}
	rng := rand.New(rand.NewSource(1))

	d0 := computeBackoff(rp, 0, rng)
	d1 := computeBackoff(rp, 1, rng)
	d2 := computeBackoff(rp, 2, rng)

	if d0 != 100 {
		t.Errorf("expected attempt 0 delay 100, got %d", d0)
	}
	if d1 != 200 {
		t.Errorf("expected attempt 1 delay 200, got %d", d1)
	}
	if d2 != 400 {
		t.Errorf("expected attempt 2 delay 400, got %d", d2)
	}
}

func TestComputeBackoff_CapsAtMaxInterval(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: 100,
		BackoffFactor:   10,
		MaxInterval:     500,
	}
	d := computeBackoff(rp, 5, rand.New(rand.NewSource(1)))
	if d != 500 {
		t.Errorf("expected delay capped at 500, got %d", d)
	}
}

func TestComputeBackoff_JitterAddsBoundedNoise(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100,
		BackoffFactor:   1,
		Jitter:          50,
	}
	rng := rand.New(rand.NewSource(1))
	d := computeBackoff(rp, 0, rng)
	if d < 100 || d >= 150 {
		t.Errorf("expected delay in [100, 150), got %d", d)
	}
}

func TestShouldRetry(t *testing.T) {
	t.Run("nil policy never retries", func(t *testing.T) {
		if shouldRetry(nil, 0, errors.New("x")) {
			t.Error("expected no retry with nil policy")
		}
	})

	t.Run("stops at MaxAttempts", func(t *testing.T) {
		rp := &RetryPolicy{MaxAttempts: 2}
		if !shouldRetry(rp, 0, errors.New("x")) {
			t.Error("expected retry after first failed attempt")
		}
		if shouldRetry(rp, 1, errors.New("x")) {
			t.Error("expected no retry once MaxAttempts reached")
		}
	})

	t.Run("honors custom Retryable predicate", func(t *testing.T) {
		permanent := errors.New("permanent")
		rp := &RetryPolicy{
			MaxAttempts: 5,
			Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		}
		if shouldRetry(rp, 0, permanent) {
			t.Error("expected Retryable to veto retry for permanent error")
		}
		if !shouldRetry(rp, 0, errors.New("transient")) {
			t.Error("expected retry for a non-permanent error")
		}
	})
}

package graph

import "math/rand"

// computeBackoff calculates the delay before retrying a failed node,
// following the formula spec §4.5.2 names: raw = initial * backoff^attempt,
// capped at MaxInterval, plus a uniformly-random jitter in [0, Jitter).
// Grounded on the teacher's graph/policy.go computeBackoff, generalized
// from a fixed 2x exponent to RetryPolicy.BackoffFactor and from a fixed
// jitter-equal-to-base to an explicit Jitter field.
func computeBackoff(rp *RetryPolicy, attempt int, rng *rand.Rand) (delay int64) {
	raw := float64(rp.InitialInterval)
	for i := 0; i < attempt; i++ {
		raw *= rp.BackoffFactor
	}
	if rp.MaxInterval > 0 && int64(raw) > int64(rp.MaxInterval) {
		raw = float64(rp.MaxInterval)
	}
	delay = int64(raw)
	if rp.Jitter > 0 {
		if rng != nil {
			delay += rng.Int63n(int64(rp.Jitter))
		} else {
			delay += rand.Int63n(int64(rp.Jitter)) // #nosec G404 -- jitter timing only
		}
	}
	return delay
}

// shouldRetry reports whether attempt (0-indexed, the attempt that just
// failed with err) should be followed by another attempt under rp.
func shouldRetry(rp *RetryPolicy, attempt int, err error) bool {
	if rp == nil {
		return false
	}
	if attempt+1 >= rp.MaxAttempts {
		return false
	}
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return true
}

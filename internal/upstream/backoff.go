package upstream

import (
	"math/rand/v2"
	"time"
)

// Backoff defaults.
const (
	DefaultMaxRetries     = 6
	DefaultBaseBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff     = 15 * time.Second
	DefaultNetworkBackoff = 2 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// backoffFor computes the wait before the next attempt, before jitter.
// Growth is strictly doubling per attempt until the cap: attempt 1 waits
// base, attempt 2 waits 2*base, and so on.
func backoffFor(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= ceiling {
			return ceiling
		}
	}
	if wait > ceiling {
		return ceiling
	}
	return wait
}

// defaultJitter draws a uniform duration in [0, jitterWindow).
// Jitter is additive, never multiplicative.
func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(jitterWindow)))
}

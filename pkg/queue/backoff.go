package queue

import "time"

const (
	backoffBase = 30 * time.Second
	backoffCap  = time.Hour
)

// BackoffFunc returns the delay before the given attempt (1-based) is retried.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff waits 30s, 1m, 2m, 4m... between attempts, capped at one hour.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

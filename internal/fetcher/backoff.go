package fetcher

import (
	"math"
	"math/rand"
	"time"
)

// BackoffDelay calculates the delay before the next fetch retry. Uses
// exponential backoff: base * 2^(attempt-1) with up to 10% jitter, capped at
// maxDelay. Ported from the dispatch package's retry-scheduling shape and
// generalized from agent-dispatch retries to network fetch retries.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	exponent := attempt - 1
	multiplier := math.Pow(2, float64(exponent))

	if math.IsInf(multiplier, 1) || multiplier > float64(maxDelay)/float64(base) {
		delay := maxDelay
		jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
		return delay + jitter
	}

	delay := base * time.Duration(multiplier)
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// ShouldRetryStatus reports whether an HTTP status code is retryable.
// Network errors and 5xx are retryable; 429 is retryable (honoring
// Retry-After separately); 4xx other than 408/429 are terminal.
func ShouldRetryStatus(statusCode int) bool {
	if statusCode == 0 {
		return true // network error, no status
	}
	if statusCode >= 500 {
		return true
	}
	if statusCode == 408 || statusCode == 429 {
		return true
	}
	return false
}

// ABOUTME: Retry helpers for API calls with exponential backoff
// ABOUTME: Shared by the LLM client and embedding generator
package util

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before the given retry attempt (1-based):
// baseDelay * 2^(attempt-1), with up to 25% jitter, capped at 30 seconds.
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// Cap the shift to avoid overflow.
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt-1))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	// Jitter: -25% to +25%.
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

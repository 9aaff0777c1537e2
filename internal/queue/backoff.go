package queue

import "time"

const (
	// DefaultBaseDelay is the first retry delay.
	DefaultBaseDelay = 5 * time.Minute

	// MaxDelay caps the backoff at 24 hours (1440 minutes).
	MaxDelay = 24 * time.Hour
)

// Backoff computes the delay before the next attempt from the number of
// retries already recorded on the message: base * 2^retryCount, capped
// at MaxDelay. With the 5 minute base the sequence is 5, 10, 20, 40, ...
// minutes until the cap.
func Backoff(retryCount int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if retryCount < 0 {
		retryCount = 0
	}

	// 2^retryCount overflows long before the cap matters.
	if retryCount > 30 {
		return MaxDelay
	}

	delay := base << uint(retryCount)
	if delay > MaxDelay || delay <= 0 {
		return MaxDelay
	}
	return delay
}

package queue

import (
	"math/rand"
	"time"
)

// MaxPresentationRetries bounds re-enqueues after the first presentation
// delivery. A task therefore runs at most MaxPresentationRetries+1 times.
const MaxPresentationRetries = 3

const baseRetryDelay = 30 * time.Second

// BackoffDelay doubles the base delay per attempt and adds up to 50% jitter.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseRetryDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter
}

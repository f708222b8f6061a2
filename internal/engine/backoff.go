package engine

import "time"

const (
	shortBackoff = 500 * time.Millisecond
	longBackoff  = 2 * time.Second

	// shortBackoffAttempts is the number of consecutive failures retried quickly
	shortBackoffAttempts = 3
)

// Backoff returns how long to wait before reconnecting after the given number of
// consecutive transport failures
func Backoff(attempts int) time.Duration {
	if attempts <= shortBackoffAttempts {
		return shortBackoff
	}
	return longBackoff
}

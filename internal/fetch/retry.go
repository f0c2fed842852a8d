package fetch

import "time"

// Policy describes how a call site reacts to upstream 429 responses.
// Exhausted is the error surfaced once MaxAttempts have all been rate limited.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Exhausted   error
}

// OncePolicy retries a single time after a fixed 2-second delay. This is the
// default for cached GETs, where a cache hit usually absorbs the load anyway.
func OncePolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Backoff:     func(int) time.Duration { return 2 * time.Second },
		Exhausted:   ErrRateLimited,
	}
}

// PersistentPolicy retries up to 6 times with exponential backoff
// (2^attempt seconds). Used for the most rate-limit-sensitive endpoints.
func PersistentPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		Backoff:     func(attempt int) time.Duration { return (1 << attempt) * time.Second },
		Exhausted:   ErrExhausted,
	}
}

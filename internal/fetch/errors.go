package fetch

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when an upstream provider answers 429 and the
// single fixed-delay retry of CachedGet fails too.
var ErrRateLimited = errors.New("upstream rate limited")

// ErrExhausted is returned when the exponential-backoff retry budget of
// GetWithRetry runs out without a successful response.
var ErrExhausted = errors.New("upstream retry budget exhausted")

// StatusError reports a non-2xx, non-429 upstream response. The status code
// is carried so the API boundary can surface it to the caller.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

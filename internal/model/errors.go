package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnparseable marks a 200 response whose body does not have the expected shape.
	ErrUnparseable = errors.New("unparseable enrichment response")

	// ErrRetriesExhausted marks a record abandoned after its failure budget ran out.
	ErrRetriesExhausted = errors.New("enrichment retries exhausted")

	// ErrNoCredentials is returned when a pool is built without any credential.
	ErrNoCredentials = errors.New("at least one credential is required")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is an HTTP 429.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 429
}

package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/synopsis/internal/model"
)

// maxErrorBody caps how much of a failed response body ends up in an error message.
const maxErrorBody = 512

// ParseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent, unparseable
// or not positive.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// StatusError builds a *model.HTTPError from a non-2xx response. The body is
// read up to a small limit; the caller still owns closing it.
func StatusError(resp *http.Response) *model.HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
	}
}

// RetryAfterOr returns the server-provided wait carried by err, or def when
// err carries none.
func RetryAfterOr(err error, def time.Duration) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return def
}

package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/synopsis/internal/model"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{" 12 ", 12 * time.Second},
		{"0", 0},
		{"-3", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatusError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"3"}},
		Body:       io.NopCloser(strings.NewReader(strings.Repeat("x", 2*maxErrorBody))),
	}

	err := StatusError(resp)
	if err.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", err.StatusCode)
	}
	if err.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", err.RetryAfter)
	}
	if len(err.Err.Error()) != maxErrorBody {
		t.Errorf("body length = %d, want capped at %d", len(err.Err.Error()), maxErrorBody)
	}
	if !model.IsRateLimited(err) {
		t.Error("expected IsRateLimited to be true")
	}
}

func TestRetryAfterOr(t *testing.T) {
	wrapped := fmt.Errorf("enrich: %w", &model.HTTPError{StatusCode: 429, RetryAfter: 4 * time.Second})
	if got := RetryAfterOr(wrapped, 10*time.Second); got != 4*time.Second {
		t.Errorf("wrapped: got %v, want 4s", got)
	}
	if got := RetryAfterOr(&model.HTTPError{StatusCode: 429}, 10*time.Second); got != 10*time.Second {
		t.Errorf("absent: got %v, want default 10s", got)
	}
	if got := RetryAfterOr(errors.New("plain"), time.Minute); got != time.Minute {
		t.Errorf("plain: got %v, want default", got)
	}
}

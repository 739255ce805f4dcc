// Package ratelimit parses advisory rate-limit hints from upstream response
// headers and sizes retry backoff delays from them. Hints are advisory only:
// they influence how long the client waits before a retry, never whether a
// request is allowed.
package ratelimit

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Backoff bounds for retryable upstream failures.
const (
	// BackoffBase is the first-retry delay for exponential backoff.
	BackoffBase = 600 * time.Millisecond

	// BackoffMax caps every computed delay, including Retry-After hints.
	BackoffMax = 8 * time.Second

	// BackoffJitterMax is the maximum random jitter added to exponential backoff.
	BackoffJitterMax = 250 * time.Millisecond
)

// Hint carries the raw rate-limit headers of one upstream response.
// All fields are kept as strings: upstreams have been observed sending
// malformed values, and a bad hint must degrade to exponential backoff
// rather than fail the request.
type Hint struct {
	RetryAfter string `json:"retryAfter,omitempty"`
	Remaining  string `json:"remaining,omitempty"`
	Limit      string `json:"limit,omitempty"`
	Reset      string `json:"reset,omitempty"`
}

// FromHeaders extracts rate-limit hints from response headers.
func FromHeaders(h http.Header) Hint {
	if h == nil {
		return Hint{}
	}
	return Hint{
		RetryAfter: h.Get("Retry-After"),
		Remaining:  h.Get("X-RateLimit-Remaining"),
		Limit:      h.Get("X-RateLimit-Limit"),
		Reset:      h.Get("X-RateLimit-Reset"),
	}
}

// IsZero reports whether no hint headers were present.
func (h Hint) IsZero() bool {
	return h.RetryAfter == "" && h.Remaining == "" && h.Limit == "" && h.Reset == ""
}

// Fields returns the non-empty hints as a diagnostic bag for fault records.
func (h Hint) Fields() map[string]any {
	if h.IsZero() {
		return nil
	}
	fields := make(map[string]any, 4)
	if h.RetryAfter != "" {
		fields["retryAfter"] = h.RetryAfter
	}
	if h.Remaining != "" {
		fields["remaining"] = h.Remaining
	}
	if h.Limit != "" {
		fields["limit"] = h.Limit
	}
	if h.Reset != "" {
		fields["reset"] = h.Reset
	}
	return fields
}

// RetryAfterDelay parses the Retry-After hint as either delay-seconds or an
// HTTP-date relative to now. Returns false when the hint is absent, malformed,
// or non-positive. The returned delay is clamped to BackoffMax.
func (h Hint) RetryAfterDelay(now time.Time) (time.Duration, bool) {
	if h.RetryAfter == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(h.RetryAfter, 64); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return clamp(time.Duration(secs * float64(time.Second))), true
	}

	if at, err := http.ParseTime(h.RetryAfter); err == nil {
		d := at.Sub(now)
		if d <= 0 {
			return 0, false
		}
		return clamp(d), true
	}

	return 0, false
}

// Backoff computes the delay before retry number attempt (1-based: the delay
// after the attempt-th failed try). A positive Retry-After hint wins;
// otherwise exponential backoff with jitter, clamped to [BackoffBase, BackoffMax].
func Backoff(attempt int, h Hint, now time.Time) time.Duration {
	if d, ok := h.RetryAfterDelay(now); ok {
		return d
	}

	if attempt < 1 {
		attempt = 1
	}
	d := BackoffBase << (attempt - 1)
	d += time.Duration(rand.Int63n(int64(BackoffJitterMax)))
	if d < BackoffBase {
		d = BackoffBase
	}
	return clamp(d)
}

func clamp(d time.Duration) time.Duration {
	if d > BackoffMax {
		return BackoffMax
	}
	return d
}

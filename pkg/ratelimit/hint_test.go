package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Limit", "60")

	hint := FromHeaders(h)
	if hint.RetryAfter != "2" {
		t.Errorf("RetryAfter = %q, want %q", hint.RetryAfter, "2")
	}
	if hint.Remaining != "0" {
		t.Errorf("Remaining = %q, want %q", hint.Remaining, "0")
	}
	if hint.Limit != "60" {
		t.Errorf("Limit = %q, want %q", hint.Limit, "60")
	}
	if hint.IsZero() {
		t.Error("IsZero() = true for populated headers")
	}

	if !FromHeaders(nil).IsZero() {
		t.Error("IsZero() = false for nil headers")
	}
	if !FromHeaders(http.Header{}).IsZero() {
		t.Error("IsZero() = false for empty headers")
	}
}

func TestHint_RetryAfterDelay(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		retryAfter string
		wantDelay  time.Duration
		wantOK     bool
	}{
		{
			name:       "absent",
			retryAfter: "",
			wantOK:     false,
		},
		{
			name:       "delay seconds",
			retryAfter: "2",
			wantDelay:  2 * time.Second,
			wantOK:     true,
		},
		{
			name:       "fractional seconds",
			retryAfter: "0.5",
			wantDelay:  500 * time.Millisecond,
			wantOK:     true,
		},
		{
			name:       "zero seconds",
			retryAfter: "0",
			wantOK:     false,
		},
		{
			name:       "negative seconds",
			retryAfter: "-3",
			wantOK:     false,
		},
		{
			name:       "seconds above cap clamp to max",
			retryAfter: "120",
			wantDelay:  BackoffMax,
			wantOK:     true,
		},
		{
			name:       "http date in the future",
			retryAfter: now.Add(3 * time.Second).Format(http.TimeFormat),
			wantDelay:  3 * time.Second,
			wantOK:     true,
		},
		{
			name:       "http date in the past",
			retryAfter: now.Add(-time.Minute).Format(http.TimeFormat),
			wantOK:     false,
		},
		{
			name:       "http date far in the future clamps to max",
			retryAfter: now.Add(time.Hour).Format(http.TimeFormat),
			wantDelay:  BackoffMax,
			wantOK:     true,
		},
		{
			name:       "garbage",
			retryAfter: "soon",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := Hint{RetryAfter: tt.retryAfter}
			delay, ok := hint.RetryAfterDelay(now)
			if ok != tt.wantOK {
				t.Fatalf("RetryAfterDelay() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && delay != tt.wantDelay {
				t.Errorf("RetryAfterDelay() = %v, want %v", delay, tt.wantDelay)
			}
		})
	}
}

func TestBackoff_HintWins(t *testing.T) {
	now := time.Now()
	hint := Hint{RetryAfter: "2"}

	d := Backoff(1, hint, now)
	if d != 2*time.Second {
		t.Errorf("Backoff() = %v, want %v", d, 2*time.Second)
	}

	// A hinted delay is exact, never jittered.
	for i := 0; i < 10; i++ {
		if got := Backoff(3, hint, now); got != 2*time.Second {
			t.Fatalf("Backoff() = %v on repeat, want %v", got, 2*time.Second)
		}
	}
}

func TestBackoff_ExponentialBounds(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{"first retry", 1, BackoffBase, BackoffBase + BackoffJitterMax},
		{"second retry", 2, 2 * BackoffBase, 2*BackoffBase + BackoffJitterMax},
		{"third retry", 3, 4 * BackoffBase, 4*BackoffBase + BackoffJitterMax},
		{"deep retry clamps to max", 10, BackoffMax, BackoffMax},
		{"attempt below one treated as first", 0, BackoffBase, BackoffBase + BackoffJitterMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				d := Backoff(tt.attempt, Hint{}, now)
				if d < tt.min || d > tt.max {
					t.Fatalf("Backoff(%d) = %v, want in [%v, %v]", tt.attempt, d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestHint_Fields(t *testing.T) {
	if got := (Hint{}).Fields(); got != nil {
		t.Errorf("Fields() = %v for zero hint, want nil", got)
	}

	fields := Hint{RetryAfter: "1", Remaining: "5"}.Fields()
	if fields["retryAfter"] != "1" {
		t.Errorf("fields[retryAfter] = %v, want %q", fields["retryAfter"], "1")
	}
	if fields["remaining"] != "5" {
		t.Errorf("fields[remaining] = %v, want %q", fields["remaining"], "5")
	}
	if _, exists := fields["limit"]; exists {
		t.Error("fields carries empty limit hint")
	}
}

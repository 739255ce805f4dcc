// Package upstream provides the resilient HTTP client the aggregation
// pipeline reads the platform through: allowlist validation, pre-dispatch
// jitter, per-attempt timeout, bounded retry with backoff honoring
// rate-limit hints, single redirect-hop re-validation, and JSON decoding.
// Failures never propagate as errors to callers; they are appended to a
// fault recorder and the call yields nil.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yozoyaa/roblox-proxy-vercel/pkg/logging"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/ratelimit"
)

// Client defaults.
const (
	// DefaultMaxAttempts is the total attempt budget per logical call.
	DefaultMaxAttempts = 4

	// DefaultAttemptTimeout is the hard timeout for a single HTTP attempt.
	DefaultAttemptTimeout = 15 * time.Second

	// Pre-dispatch jitter bounds, applied before every attempt to spread
	// bursts across concurrent callers.
	JitterMin = 200 * time.Millisecond
	JitterMax = 300 * time.Millisecond

	// snippetLimit caps body excerpts carried in fault records.
	snippetLimit = 300
)

// DefaultAllowlist enumerates the platform hosts the client may call.
// Every target, including redirect targets, must match one of these.
var DefaultAllowlist = []string{
	"games.roblox.com",
	"apis.roblox.com",
	"users.roblox.com",
	"catalog.roblox.com",
	"economy.roblox.com",
	"inventory.roblox.com",
	"thumbnails.roblox.com",
	"groups.roblox.com",
	"www.roblox.com",
}

// Config holds the client configuration.
type Config struct {
	// Transport performs single HTTP attempts (direct or gateway mode).
	Transport Transport

	// Allowlist of permitted hosts. Defaults to DefaultAllowlist.
	Allowlist []string

	// MaxAttempts is the total attempt budget (default 4).
	MaxAttempts int

	// AttemptTimeout is the per-attempt hard timeout (default 15s).
	AttemptTimeout time.Duration

	// Logger for client events. Defaults to a component logger.
	Logger *zerolog.Logger
}

// Client is the resilient upstream client.
type Client struct {
	transport      Transport
	allow          map[string]struct{}
	maxAttempts    int
	attemptTimeout time.Duration
	logger         zerolog.Logger

	// sleep is replaceable so tests can observe delays instead of waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	hosts := cfg.Allowlist
	if len(hosts) == 0 {
		hosts = DefaultAllowlist
	}
	allow := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allow[strings.ToLower(h)] = struct{}{}
	}

	logger := logging.NewLogger("upstream-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		transport:      cfg.Transport,
		allow:          allow,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		logger:         logger,
		sleep:          sleepContext,
	}, nil
}

// GetJSON performs one logical GET and returns the decoded body as raw JSON.
// On any unrecoverable failure it records a fault on sink and returns nil;
// it never returns an error to the caller.
func (c *Client) GetJSON(ctx context.Context, sink FaultRecorder, rawURL, step string, fields map[string]any) json.RawMessage {
	start := time.Now()

	resp, attempts, err := c.exec(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		c.recordError(sink, step, rawURL, fields, err, time.Since(start), attempts)
		return nil
	}

	return c.decode(sink, step, rawURL, fields, resp, time.Since(start), attempts)
}

// decode classifies the final response and returns its body as raw JSON,
// recording a fault and returning nil for non-2xx or undecodable bodies.
func (c *Client) decode(sink FaultRecorder, step, rawURL string, fields map[string]any, resp *Response, elapsed time.Duration, attempts int) json.RawMessage {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordStatus(sink, step, rawURL, fields, resp, elapsed, attempts)
		return nil
	}

	if !json.Valid(resp.Body) {
		c.record(sink, step, "upstream returned a non-JSON body", fields, map[string]any{
			"code":      CodeNonJSON,
			"url":       rawURL,
			"status":    resp.StatusCode,
			"elapsedMs": elapsed.Milliseconds(),
			"body":      snippet(resp.Body),
		})
		return nil
	}

	return json.RawMessage(resp.Body)
}

// exec runs the attempt loop for one logical call: allowlist validation,
// jittered dispatch, redirect re-validation, and retry with backoff. It
// returns the final response (any status) or an error after validation
// failure or retry exhaustion, plus the number of attempts made.
func (c *Client) exec(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if !c.allowed(u) {
		return nil, 0, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
	}

	host := u.Hostname()
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, method, u, body, header)
		if err != nil {
			// Security rejections and caller cancellation are terminal.
			if errors.Is(err, ErrRedirectNotAllowed) || errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrGatewayMethod) {
				return nil, attempt, err
			}
			if ctx.Err() != nil {
				return nil, attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}

			lastErr = err
			upstreamRequestsTotal.WithLabelValues(host, "network_error").Inc()
			if attempt >= c.maxAttempts {
				break
			}

			delay := ratelimit.Backoff(attempt, ratelimit.Hint{}, time.Now())
			upstreamRetriesTotal.WithLabelValues("network").Inc()
			c.logger.Warn().
				Err(err).
				Str("host", host).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Transport error, retrying after backoff")
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, attempt, fmt.Errorf("%w: %v", ErrContextCancelled, serr)
			}
			continue
		}

		upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

		if retryableStatus(resp.StatusCode) && attempt < c.maxAttempts {
			hint := ratelimit.FromHeaders(resp.Header)
			delay := ratelimit.Backoff(attempt, hint, time.Now())
			upstreamRetriesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			c.logger.Warn().
				Str("host", host).
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retryable status, retrying after backoff")
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, attempt, fmt.Errorf("%w: %v", ErrContextCancelled, serr)
			}
			continue
		}

		if attempt > 1 {
			c.logger.Info().
				Str("host", host).
				Int("attempt", attempt).
				Msg("Request succeeded after retry")
		}
		upstreamRequestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
		return resp, attempt, nil
	}

	upstreamRetryExhaustedTotal.WithLabelValues("network").Inc()
	c.logger.Warn().
		Str("host", host).
		Int("max_attempts", c.maxAttempts).
		Msg("Retry attempts exhausted")
	return nil, c.maxAttempts, &UpstreamError{
		Host:    host,
		Message: fmt.Sprintf("after %d attempts", c.maxAttempts),
		Err:     fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr),
	}
}

// attempt performs one jittered attempt, following at most one redirect hop
// after re-validating its host. A second redirect on the same call is not
// chased; it surfaces as the final (3xx) response.
func (c *Client) attempt(ctx context.Context, method string, u *url.URL, body []byte, header http.Header) (*Response, error) {
	if err := c.sleep(ctx, jitter()); err != nil {
		return nil, err
	}

	resp, err := c.fetchOnce(ctx, method, u.String(), body, header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return resp, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return resp, nil
	}

	redirect, err := u.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect location %q", ErrInvalidURL, loc)
	}
	if !c.allowed(redirect) {
		c.logger.Error().
			Str("host", redirect.Host).
			Str("from", u.Host).
			Msg("Redirect target host not in allowlist")
		return nil, fmt.Errorf("%w: %s", ErrRedirectNotAllowed, redirect.Host)
	}

	if err := c.sleep(ctx, jitter()); err != nil {
		return nil, err
	}
	return c.fetchOnce(ctx, method, redirect.String(), body, header)
}

// fetchOnce dispatches a single HTTP attempt under the per-attempt timeout.
func (c *Client) fetchOnce(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	return c.transport.Fetch(attemptCtx, method, target, body, header)
}

// allowed reports whether the URL's host passes allowlist validation.
func (c *Client) allowed(u *url.URL) bool {
	if _, ok := c.allow[strings.ToLower(u.Host)]; ok {
		return true
	}
	_, ok := c.allow[strings.ToLower(u.Hostname())]
	return ok
}

// recordError maps a terminal call error onto a fault record.
func (c *Client) recordError(sink FaultRecorder, step, rawURL string, fields map[string]any, err error, elapsed time.Duration, attempts int) {
	code := CodeFetchFailed
	message := fmt.Sprintf("upstream call failed: %v", err)

	switch {
	case errors.Is(err, ErrInvalidURL):
		code = CodeInvalidURL
		message = fmt.Sprintf("invalid target url: %v", err)
	case errors.Is(err, ErrHostNotAllowed):
		code = CodeHostNotAllowed
		message = fmt.Sprintf("target host not allowed: %v", err)
	case errors.Is(err, ErrRedirectNotAllowed):
		code = CodeRedirectHostNotAllowed
		message = fmt.Sprintf("redirect target host not allowed: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
		message = fmt.Sprintf("upstream call timed out: %v", err)
	}

	c.record(sink, step, message, fields, map[string]any{
		"code":      code,
		"url":       rawURL,
		"elapsedMs": elapsed.Milliseconds(),
		"attempts":  attempts,
	})
}

// recordStatus maps a terminal non-2xx response onto a fault record,
// carrying status, elapsed time, rate-limit hints, and a body snippet.
func (c *Client) recordStatus(sink FaultRecorder, step, rawURL string, fields map[string]any, resp *Response, elapsed time.Duration, attempts int) {
	fctx := map[string]any{
		"code":      CodeUpstreamError,
		"url":       rawURL,
		"status":    resp.StatusCode,
		"elapsedMs": elapsed.Milliseconds(),
		"attempts":  attempts,
		"body":      snippet(resp.Body),
	}
	if hints := ratelimit.FromHeaders(resp.Header).Fields(); hints != nil {
		fctx["rateLimit"] = hints
	}
	c.record(sink, step, fmt.Sprintf("upstream returned status %d", resp.StatusCode), fields, fctx)
}

// record merges caller fields into the context bag and appends the fault.
func (c *Client) record(sink FaultRecorder, step, message string, fields, fctx map[string]any) {
	for k, v := range fields {
		if _, exists := fctx[k]; !exists {
			fctx[k] = v
		}
	}
	if code, ok := fctx["code"].(string); ok {
		upstreamFaultsTotal.WithLabelValues(code).Inc()
	}
	c.logger.Warn().
		Str("step", step).
		Interface("context", fctx).
		Msg(message)
	sink.Record(step, message, fctx)
}

// SetSleep replaces the delay function (for testing).
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// jitter returns a uniformly random pre-dispatch delay in [JitterMin, JitterMax].
func jitter() time.Duration {
	return JitterMin + time.Duration(rand.Int63n(int64(JitterMax-JitterMin)))
}

// sleepContext sleeps for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// snippet truncates a body excerpt for fault records.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLimit {
		return s[:snippetLimit]
	}
	return s
}

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxBodyBytes caps how much of an upstream body is read. Catalog and
// inventory pages are a few KB; anything larger is not a response we want.
const maxBodyBytes = 4 << 20

// Response is the transport-normalized result of one upstream attempt.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs exactly one HTTP attempt against a target URL.
// Implementations must not follow redirects: the client re-validates
// redirect hosts against the allowlist before the hop is taken.
type Transport interface {
	Fetch(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error)
}

// DirectTransport calls upstream hosts directly, attaching the Open Cloud
// API key and the session cookie on every request (both credentials, always).
type DirectTransport struct {
	httpClient *http.Client
	apiKey     string
	cookie     string
}

// NewDirectTransport creates a direct-mode transport. Either credential may
// be empty; the corresponding header is then omitted. cookie must already be
// normalized to "NAME=value" form (see config.NormalizeCookie).
func NewDirectTransport(apiKey, cookie string) *DirectTransport {
	return &DirectTransport{
		httpClient: &http.Client{
			// Redirects surface to the client for host re-validation.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		apiKey: apiKey,
		cookie: cookie,
	}
}

// Fetch performs one direct HTTP attempt.
func (t *DirectTransport) Fetch(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}
	if t.cookie != "" {
		req.Header.Set("Cookie", t.cookie)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// gatewayEnvelope is the forwarding gateway's one-call relay response.
type gatewayEnvelope struct {
	OK                  bool            `json:"ok"`
	UpstreamStatus      int             `json:"upstreamStatus"`
	UpstreamContentType string          `json:"upstreamContentType"`
	JSON                json.RawMessage `json:"json"`
	Text                string          `json:"text"`
	AuthSent            bool            `json:"authSent"`
}

// GatewayTransport relays GETs through the allowlisting forwarding gateway,
// which attaches platform credentials server-side. The gateway relays exactly
// one upstream response as a JSON envelope; this transport unwraps it back
// into a Response so the client's classification and retry logic see the
// upstream status, not the gateway's.
type GatewayTransport struct {
	httpClient *http.Client
	gatewayURL string
}

// NewGatewayTransport creates a proxy-through transport targeting gatewayURL.
func NewGatewayTransport(gatewayURL string) *GatewayTransport {
	return &GatewayTransport{
		httpClient: &http.Client{},
		gatewayURL: gatewayURL,
	}
}

// Fetch relays one GET through the gateway and unwraps the envelope.
func (t *GatewayTransport) Fetch(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error) {
	if method != http.MethodGet {
		return nil, ErrGatewayMethod
	}

	relay := t.gatewayURL + "?url=" + url.QueryEscape(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, relay, nil)
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Host:       req.URL.Hostname(),
			Message:    "gateway rejected the relay request",
		}
	}

	var env gatewayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode gateway envelope: %w", err)
	}

	payload := []byte(env.Text)
	if len(env.JSON) > 0 && string(env.JSON) != "null" {
		payload = env.JSON
	}

	status := env.UpstreamStatus
	if status == 0 {
		status = http.StatusBadGateway
	}
	// An envelope-level failure must classify as a failure even when the
	// relayed status reads 2xx.
	if !env.OK && status >= 200 && status < 300 {
		status = http.StatusBadGateway
	}

	return &Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       payload,
	}, nil
}

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/yozoyaa/roblox-proxy-vercel/pkg/cache"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/logging"
)

// CSRFHeader is the anti-forgery token header the platform demands on
// state-changing POSTs.
const CSRFHeader = "X-Csrf-Token"

// Negotiator wraps the catalog-details POST with lazy CSRF token
// acquisition: the POST is sent with the cached token (or none); a 403
// carrying a fresh token caches it and retries exactly once. Transport-level
// failures beneath the CSRF handshake get the client's normal retry
// schedule. The token store may be shared across aggregator instances.
type Negotiator struct {
	client *Client
	tokens cache.TokenStore
	logger zerolog.Logger
}

// NewNegotiator creates a CSRF negotiator. The client must use a direct
// transport: the forwarding gateway only relays GETs, and the token rides on
// request/response headers the gateway envelope does not carry.
func NewNegotiator(client *Client, tokens cache.TokenStore) *Negotiator {
	return &Negotiator{
		client: client,
		tokens: tokens,
		logger: logging.NewLogger("csrf-negotiator"),
	}
}

// PostJSON posts payload to rawURL and returns the decoded response body.
// On any unrecoverable failure it records a fault on sink and returns nil.
func (n *Negotiator) PostJSON(ctx context.Context, sink FaultRecorder, rawURL string, payload any, step string, fields map[string]any) json.RawMessage {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		n.client.record(sink, step, fmt.Sprintf("encode request payload: %v", err), fields, map[string]any{
			"code": CodeFetchFailed,
			"url":  rawURL,
		})
		return nil
	}

	token, err := n.tokens.Get(ctx)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		n.logger.Warn().Err(err).Msg("Token store read failed, posting without token")
		token = ""
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if token != "" {
		header.Set(CSRFHeader, token)
	}

	resp, attempts, err := n.client.exec(ctx, http.MethodPost, rawURL, body, header)
	if err != nil {
		n.client.recordError(sink, step, rawURL, fields, err, time.Since(start), attempts)
		return nil
	}

	if resp.StatusCode == http.StatusForbidden {
		fresh := resp.Header.Get(CSRFHeader)
		if fresh == "" || fresh == token {
			// No new token to negotiate with; terminal for this batch.
			n.client.recordStatus(sink, step, rawURL, fields, resp, time.Since(start), attempts)
			return nil
		}

		if serr := n.tokens.Set(ctx, fresh); serr != nil {
			n.logger.Warn().Err(serr).Msg("Token store write failed, retrying with uncached token")
		} else {
			n.logger.Debug().Msg("Cached refreshed CSRF token")
		}

		header.Set(CSRFHeader, fresh)
		resp, attempts, err = n.client.exec(ctx, http.MethodPost, rawURL, body, header)
		if err != nil {
			n.client.recordError(sink, step, rawURL, fields, err, time.Since(start), attempts)
			return nil
		}
		// A second 403 is terminal; decode handles it like any other status.
	}

	return n.client.decode(sink, step, rawURL, fields, resp, time.Since(start), attempts)
}

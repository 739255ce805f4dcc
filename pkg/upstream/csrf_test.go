package upstream

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/yozoyaa/roblox-proxy-vercel/internal/testutil"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/cache"
)

const detailsPath = "/v1/catalog/items/details"

// newTestNegotiator builds a negotiator over the mock with an empty
// in-memory token store.
func newTestNegotiator(t *testing.T, mock *testutil.MockUpstream) (*Negotiator, *cache.MemoryTokenStore) {
	t.Helper()
	client, _ := newTestClient(t, mock, 0)
	store := cache.NewMemoryTokenStore()
	return NewNegotiator(client, store), store
}

func TestNegotiator_RefreshOn403(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	// Challenge until the request carries the fresh token.
	mock.SetHandler(detailsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(CSRFHeader) != "fresh-token" {
			w.Header().Set(CSRFHeader, "fresh-token")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":555}]}`))
	})

	negotiator, store := newTestNegotiator(t, mock)
	sink := &testSink{}

	raw := negotiator.PostJSON(context.Background(), sink, mock.URL()+detailsPath,
		map[string]any{"items": []any{}}, "catalog.details", nil)
	if raw == nil {
		t.Fatal("PostJSON() = nil, want body after token refresh")
	}
	if !strings.Contains(string(raw), "555") {
		t.Errorf("PostJSON() = %s, want catalog data", raw)
	}
	if len(sink.faults) != 0 {
		t.Errorf("faults = %d, want 0 (handshake recovered)", len(sink.faults))
	}
	if got := mock.GetPathCount(detailsPath); got != 2 {
		t.Errorf("request count = %d, want 2 (challenge plus retry)", got)
	}

	token, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("token store Get() error = %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("cached token = %q, want %q", token, "fresh-token")
	}
}

func TestNegotiator_CachedTokenSkipsHandshake(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(detailsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(CSRFHeader) != "cached-token" {
			w.Header().Set(CSRFHeader, "cached-token")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})

	negotiator, store := newTestNegotiator(t, mock)
	store.Set(context.Background(), "cached-token")
	sink := &testSink{}

	raw := negotiator.PostJSON(context.Background(), sink, mock.URL()+detailsPath,
		map[string]any{"items": []any{}}, "catalog.details", nil)
	if raw == nil {
		t.Fatal("PostJSON() = nil, want body")
	}
	if got := mock.GetPathCount(detailsPath); got != 1 {
		t.Errorf("request count = %d, want 1 (cached token accepted first try)", got)
	}
}

func TestNegotiator_SecondForbiddenIsTerminal(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	// Always reject, always offering the same token.
	mock.SetResponse(detailsPath, testutil.MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"errors":[{"message":"Token Validation Failed"}]}`,
		Headers:    map[string]string{CSRFHeader: "rejected-anyway"},
	})

	negotiator, _ := newTestNegotiator(t, mock)
	sink := &testSink{}

	raw := negotiator.PostJSON(context.Background(), sink, mock.URL()+detailsPath,
		map[string]any{"items": []any{}}, "catalog.details", nil)
	if raw != nil {
		t.Errorf("PostJSON() = %s, want nil", raw)
	}
	if got := mock.GetPathCount(detailsPath); got != 2 {
		t.Errorf("request count = %d, want 2 (exactly one retry)", got)
	}
	if len(sink.faults) != 1 {
		t.Fatalf("faults = %d, want 1", len(sink.faults))
	}
	if got := sink.code(0); got != CodeUpstreamError {
		t.Errorf("fault code = %q, want %q", got, CodeUpstreamError)
	}
	if status, _ := sink.faults[0].Context["status"].(int); status != http.StatusForbidden {
		t.Errorf("fault status = %v, want 403", sink.faults[0].Context["status"])
	}
}

func TestNegotiator_ForbiddenWithoutTokenIsTerminal(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse(detailsPath, testutil.MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"errors":[{"message":"forbidden"}]}`,
	})

	negotiator, _ := newTestNegotiator(t, mock)
	sink := &testSink{}

	if raw := negotiator.PostJSON(context.Background(), sink, mock.URL()+detailsPath,
		map[string]any{"items": []any{}}, "catalog.details", nil); raw != nil {
		t.Errorf("PostJSON() = %s, want nil", raw)
	}
	if got := mock.GetPathCount(detailsPath); got != 1 {
		t.Errorf("request count = %d, want 1 (no token to negotiate with)", got)
	}
	if len(sink.faults) != 1 {
		t.Errorf("faults = %d, want 1", len(sink.faults))
	}
}

func TestNegotiator_HostNotAllowed(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	negotiator, _ := newTestNegotiator(t, mock)
	sink := &testSink{}

	raw := negotiator.PostJSON(context.Background(), sink, "https://evil.example.com"+detailsPath,
		map[string]any{"items": []any{}}, "catalog.details", nil)
	if raw != nil {
		t.Errorf("PostJSON() = %s, want nil", raw)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("request count = %d, want 0", got)
	}
	if got := sink.code(0); got != CodeHostNotAllowed {
		t.Errorf("fault code = %q, want %q", got, CodeHostNotAllowed)
	}
}

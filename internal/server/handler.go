package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/yozoyaa/roblox-proxy-vercel/pkg/aggregate"
)

// Handler serves the aggregation endpoint. Every response on the assets
// route is HTTP 200 with a decodable JSON body: the consumer is a game
// server that must always be able to decode the result, so failures ride
// inside the body as ok:false plus fault records.
type Handler struct {
	pipeline *aggregate.Pipeline
	defaults aggregate.Options
	logger   zerolog.Logger
	version  string
}

// NewHandler creates the HTTP handler set.
func NewHandler(pipeline *aggregate.Pipeline, defaults aggregate.Options, logger zerolog.Logger, version string) *Handler {
	return &Handler{
		pipeline: pipeline,
		defaults: defaults,
		logger:   logger,
		version:  version,
	}
}

// Assets handles the aggregation route for all methods.
func (h *Handler) Assets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeResult(w, badRequestResult(0, "method not allowed, use GET", map[string]any{
			"code":   "validate",
			"method": r.Method,
		}))
		return
	}

	q := r.URL.Query()

	userID, err := strconv.ParseInt(q.Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeResult(w, badRequestResult(0, "userId must be a positive integer", map[string]any{
			"code":   "validate",
			"userId": q.Get("userId"),
		}))
		return
	}

	opts := h.defaults
	opts.IncludeGamepasses = boolParam(q.Get("includeGamepasses"), opts.IncludeGamepasses)
	opts.IncludeClothing = boolParam(q.Get("includeClothing"), opts.IncludeClothing)
	opts.MaxPlaces = intParam(q.Get("maxPlaces"), opts.MaxPlaces)
	opts.MaxUniversePages = intParam(q.Get("maxUniversePages"), opts.MaxUniversePages)
	opts.MaxInventoryPages = intParam(q.Get("maxInventoryPages"), opts.MaxInventoryPages)
	opts.PageSize = intParam(q.Get("pageSize"), opts.PageSize)

	result := h.pipeline.Run(r.Context(), userID, opts)
	writeResult(w, result)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health, used for liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// badRequestResult builds the ok:false document for rejected input without
// running the pipeline (no network calls at all).
func badRequestResult(userID int64, message string, context map[string]any) *aggregate.Result {
	return &aggregate.Result{
		OK:     false,
		UserID: userID,
		Data:   aggregate.NewCatalog(),
		Errors: []aggregate.Fault{{
			Step:    "validate",
			Message: message,
			Context: context,
		}},
	}
}

// writeResult writes the result document, always with status 200.
func writeResult(w http.ResponseWriter, result *aggregate.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func boolParam(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

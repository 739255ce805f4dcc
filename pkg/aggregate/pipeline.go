package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yozoyaa/roblox-proxy-vercel/pkg/cache"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/limiter"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/logging"
	"github.com/yozoyaa/roblox-proxy-vercel/pkg/upstream"
)

// catalogBatchSize is the id count per catalog-details POST.
const catalogBatchSize = 50

// Prometheus metrics for aggregation runs.
var (
	aggregationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_runs_total",
		Help: "Total aggregation runs by outcome (ok or degraded)",
	}, []string{"outcome"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_run_duration_seconds",
		Help:    "Aggregation run duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	aggregationAssetsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_assets_found_total",
		Help: "Assets admitted into the catalog by bucket",
	}, []string{"bucket"})
)

// Pipeline orchestrates the five-stage discovery walk. It is stateless
// across runs; all mutable state lives in the per-run state so concurrent
// invocations never cross-contaminate.
type Pipeline struct {
	client    *upstream.Client
	csrf      *upstream.Negotiator
	endpoints Endpoints
	logger    zerolog.Logger
}

// New creates a pipeline over the given clients. Zero-valued endpoint
// fields take the production defaults.
func New(client *upstream.Client, csrf *upstream.Negotiator, endpoints Endpoints) *Pipeline {
	return &Pipeline{
		client:    client,
		csrf:      csrf,
		endpoints: endpoints.withDefaults(),
		logger:    logging.NewLogger("aggregator"),
	}
}

// runState is the mutable state of one aggregation run.
type runState struct {
	userID    int64
	opts      Options
	sink      *FaultSink
	lim       *limiter.Limiter
	memo      *cache.OwnerMemo
	sf        singleflight.Group
	catalog   Catalog
	places    []int64
	universes []int64
	// inventory holds the distinct inventory asset ids per clothing bucket.
	inventory map[AssetType][]int64
}

// Run executes the pipeline for one user and returns the single response
// document. It never returns an error: every failure mode, including a
// panic inside a stage, ends up as a fault record in the result.
func (p *Pipeline) Run(ctx context.Context, userID int64, opts Options) (res *Result) {
	start := time.Now()
	st := &runState{
		userID:    userID,
		opts:      opts.Clamped(),
		sink:      NewFaultSink(),
		memo:      cache.NewOwnerMemo(),
		catalog:   NewCatalog(),
		inventory: make(map[AssetType][]int64, len(clothingSpecs)),
	}
	st.lim = limiter.New(st.opts.Concurrency)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int64("user_id", userID).
				Interface("panic", r).
				Msg("Pipeline panicked, returning degraded result")
			st.sink.Record("fatal", fmt.Sprintf("unexpected failure: %v", r), map[string]any{
				"code": "fatal",
			})
			res = p.assemble(st, start)
		}
	}()

	if userID <= 0 {
		st.sink.Record("validate", "userId must be a positive integer", map[string]any{
			"code":   "validate",
			"userId": userID,
		})
		return p.assemble(st, start)
	}

	p.fetchPlaces(ctx, st)
	p.fetchUniverses(ctx, st)
	if st.opts.IncludeGamepasses {
		p.fetchGamePasses(ctx, st)
	}
	if st.opts.IncludeClothing {
		p.fetchInventory(ctx, st)
		p.enrichClothing(ctx, st)
	}

	return p.assemble(st, start)
}

// fetchPlaces lists the user's games and extracts each root place id.
func (p *Pipeline) fetchPlaces(ctx context.Context, st *runState) {
	target := fmt.Sprintf("%s/v2/users/%d/games?accessFilter=Public&limit=50", p.endpoints.Games, st.userID)
	raw := p.client.GetJSON(ctx, st.sink, target, "places", nil)
	if raw == nil {
		return
	}

	var page struct {
		Data []struct {
			RootPlace struct {
				ID int64 `json:"id"`
			} `json:"rootPlace"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		st.sink.Record("places", fmt.Sprintf("unexpected games response shape: %v", err), map[string]any{
			"code": upstream.CodeNonJSON,
		})
		return
	}

	seen := make(map[int64]struct{}, len(page.Data))
	for _, g := range page.Data {
		id := g.RootPlace.ID
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		st.places = append(st.places, id)
		if len(st.places) >= st.opts.MaxPlaces {
			break
		}
	}
}

// fetchUniverses resolves each place to its owning universe. Units fan out
// through the limiter and write only their own slot; the merge into the
// deduplicated universe list happens in one pass after all units complete.
func (p *Pipeline) fetchUniverses(ctx context.Context, st *runState) {
	if len(st.places) == 0 {
		return
	}

	results := make([]int64, len(st.places))
	limiter.ForEach(ctx, st.lim, st.places, func(ctx context.Context, i int, placeID int64) {
		target := fmt.Sprintf("%s/universes/v1/places/%d/universe", p.endpoints.Apis, placeID)
		raw := p.client.GetJSON(ctx, st.sink, target, "universes", map[string]any{"placeId": placeID})
		if raw == nil {
			return
		}

		var out struct {
			UniverseID int64 `json:"universeId"`
		}
		if err := json.Unmarshal(raw, &out); err != nil || out.UniverseID <= 0 {
			st.sink.Record("universes", "response missing universeId", map[string]any{
				"code":    "missing_field",
				"placeId": placeID,
			})
			return
		}
		results[i] = out.UniverseID
	})

	seen := make(map[int64]struct{}, len(results))
	for _, id := range results {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		st.universes = append(st.universes, id)
	}
}

// gamePassItem is one for-sale pass discovered in stage three.
type gamePassItem struct {
	id    int64
	entry AssetEntry
}

// fetchGamePasses pages through each universe's game-pass listing. Pages
// within one universe are strictly sequential (each page's token depends on
// the previous response); universes fan out through the limiter.
func (p *Pipeline) fetchGamePasses(ctx context.Context, st *runState) {
	if len(st.universes) == 0 {
		return
	}

	perUniverse := make([][]gamePassItem, len(st.universes))
	limiter.ForEach(ctx, st.lim, st.universes, func(ctx context.Context, i int, universeID int64) {
		perUniverse[i] = p.fetchUniversePasses(ctx, st, universeID)
	})

	bucket := st.catalog[TypeGamePass]
	for _, items := range perUniverse {
		for _, item := range items {
			key := strconv.FormatInt(item.id, 10)
			// First occurrence wins across pages and universes.
			if _, exists := bucket[key]; exists {
				continue
			}
			bucket[key] = item.entry
			aggregationAssetsFound.WithLabelValues(string(TypeGamePass)).Inc()
		}
	}
}

func (p *Pipeline) fetchUniversePasses(ctx context.Context, st *runState, universeID int64) []gamePassItem {
	var items []gamePassItem
	cursor := ""

	for page := 1; page <= st.opts.MaxUniversePages; page++ {
		target := fmt.Sprintf("%s/v1/games/%d/game-passes?limit=%d", p.endpoints.Games, universeID, st.opts.PageSize)
		if cursor != "" {
			target += "&cursor=" + url.QueryEscape(cursor)
		}

		raw := p.client.GetJSON(ctx, st.sink, target, "gamepasses", map[string]any{
			"universeId": universeID,
			"page":       page,
		})
		if raw == nil {
			// Fault recorded; stop paging this universe, others continue.
			break
		}

		var out struct {
			NextPageCursor string `json:"nextPageCursor"`
			Data           []struct {
				ID          int64           `json:"id"`
				Name        string          `json:"name"`
				DisplayName string          `json:"displayName"`
				IsForSale   bool            `json:"isForSale"`
				Price       json.RawMessage `json:"price"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			st.sink.Record("gamepasses", fmt.Sprintf("unexpected game-pass response shape: %v", err), map[string]any{
				"code":       upstream.CodeNonJSON,
				"universeId": universeID,
			})
			break
		}

		for _, pass := range out.Data {
			if pass.ID <= 0 || !pass.IsForSale {
				continue
			}
			price, ok := parsePrice(pass.Price)
			if !ok || price <= 0 {
				continue
			}

			name := pass.Name
			if name == "" {
				name = pass.DisplayName
			}
			if name == "" {
				name = fmt.Sprintf("Game Pass %d", pass.ID)
			}

			items = append(items, gamePassItem{
				id: pass.ID,
				entry: AssetEntry{
					AssetName:   name,
					AssetType:   TypeGamePass,
					AssetTypeID: AssetTypeIDGamePass,
					AssetPrice:  price,
				},
			})
		}

		cursor = out.NextPageCursor
		if cursor == "" {
			break
		}
	}

	return items
}

// fetchInventory pages through the user's inventory for each classic
// clothing type, collecting distinct asset ids per bucket.
func (p *Pipeline) fetchInventory(ctx context.Context, st *runState) {
	perType := make([][]int64, len(clothingSpecs))
	limiter.ForEach(ctx, st.lim, clothingSpecs, func(ctx context.Context, i int, spec clothingSpec) {
		perType[i] = p.fetchInventoryType(ctx, st, spec)
	})

	for i, spec := range clothingSpecs {
		st.inventory[spec.Bucket] = perType[i]
	}
}

func (p *Pipeline) fetchInventoryType(ctx context.Context, st *runState, spec clothingSpec) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	cursor := ""

	for page := 1; page <= st.opts.MaxInventoryPages; page++ {
		target := fmt.Sprintf("%s/v2/users/%d/inventory/%d?limit=%d", p.endpoints.Inventory, st.userID, spec.TypeID, st.opts.PageSize)
		if cursor != "" {
			target += "&cursor=" + url.QueryEscape(cursor)
		}

		raw := p.client.GetJSON(ctx, st.sink, target, "inventory", map[string]any{
			"assetTypeId": spec.TypeID,
			"page":        page,
		})
		if raw == nil {
			break
		}

		var out struct {
			NextPageCursor string `json:"nextPageCursor"`
			Data           []struct {
				AssetID int64 `json:"assetId"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			st.sink.Record("inventory", fmt.Sprintf("unexpected inventory response shape: %v", err), map[string]any{
				"code":        upstream.CodeNonJSON,
				"assetTypeId": spec.TypeID,
			})
			break
		}

		for _, item := range out.Data {
			if item.AssetID <= 0 {
				continue
			}
			if _, dup := seen[item.AssetID]; dup {
				continue
			}
			seen[item.AssetID] = struct{}{}
			ids = append(ids, item.AssetID)
		}

		cursor = out.NextPageCursor
		if cursor == "" {
			break
		}
	}

	return ids
}

// catalogItem is one entry of the catalog-details response.
type catalogItem struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Price           json.RawMessage `json:"price"`
	IsOffSale       bool            `json:"isOffSale"`
	PriceStatus     string          `json:"priceStatus"`
	CreatorType     json.RawMessage `json:"creatorType"`
	CreatorTargetID int64           `json:"creatorTargetId"`
}

// enrichClothing batches the distinct inventory ids through the
// catalog-details POST, filters off-sale items, resolves creator ownership,
// and writes the survivors into their clothing buckets.
func (p *Pipeline) enrichClothing(ctx context.Context, st *runState) {
	// First type wins for ids appearing under several inventory types.
	tracked := make(map[int64]AssetType)
	var ordered []int64
	for _, spec := range clothingSpecs {
		for _, id := range st.inventory[spec.Bucket] {
			if _, dup := tracked[id]; dup {
				continue
			}
			tracked[id] = spec.Bucket
			ordered = append(ordered, id)
		}
	}
	if len(ordered) == 0 {
		return
	}

	target := p.endpoints.Catalog + "/v1/catalog/items/details"
	for batchStart := 0; batchStart < len(ordered); batchStart += catalogBatchSize {
		end := batchStart + catalogBatchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := ordered[batchStart:end]

		items := make([]map[string]any, len(batch))
		for i, id := range batch {
			items[i] = map[string]any{"itemType": "Asset", "id": id}
		}

		raw := p.csrf.PostJSON(ctx, st.sink, target, map[string]any{"items": items}, "catalog.details", map[string]any{
			"batch":     batchStart / catalogBatchSize,
			"batchSize": len(batch),
		})
		if raw == nil {
			// Fault recorded; proceed to the next batch.
			continue
		}

		var out struct {
			Data []catalogItem `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			st.sink.Record("catalog.details", fmt.Sprintf("unexpected catalog response shape: %v", err), map[string]any{
				"code": upstream.CodeNonJSON,
			})
			continue
		}

		for _, item := range out.Data {
			bucket, ok := tracked[item.ID]
			if !ok {
				continue
			}
			if !onSale(item) {
				continue
			}
			if !p.ownedByUser(ctx, st, classifyCreator(item.CreatorType), item.CreatorTargetID) {
				continue
			}

			price, _ := parsePrice(item.Price)
			name := item.Name
			if name == "" {
				name = fmt.Sprintf("Asset %d", item.ID)
			}

			st.catalog[bucket][strconv.FormatInt(item.ID, 10)] = AssetEntry{
				AssetName:   name,
				AssetType:   bucket,
				AssetTypeID: assetTypeIDFor(bucket),
				AssetPrice:  price,
			}
			aggregationAssetsFound.WithLabelValues(string(bucket)).Inc()
		}
	}
}

// onSale reports whether a catalog item is currently purchasable.
func onSale(item catalogItem) bool {
	if item.IsOffSale {
		return false
	}
	if item.PriceStatus == "Off Sale" {
		return false
	}
	price, ok := parsePrice(item.Price)
	return ok && price > 0
}

// ownedByUser applies the creator-attribution rules: a User creator must be
// the target user; a Group creator's owner must be the target user; an
// ambiguous encoding is probed as a group first and falls back to the user
// rule when the probe finds no group owner.
func (p *Pipeline) ownedByUser(ctx context.Context, st *runState, kind creatorKind, creatorID int64) bool {
	switch kind {
	case creatorUser:
		return creatorID == st.userID
	case creatorGroup:
		owner, ok := p.resolveGroupOwner(ctx, st, creatorID, st.sink)
		return ok && owner == st.userID
	default:
		owner, ok := p.resolveGroupOwner(ctx, st, creatorID, discardFaults{})
		if ok {
			return owner == st.userID
		}
		return creatorID == st.userID
	}
}

// resolveGroupOwner resolves a group's owning user, memoized per run and
// deduplicated across concurrent workers. ok is false when the id is not a
// readable group with an owner.
func (p *Pipeline) resolveGroupOwner(ctx context.Context, st *runState, groupID int64, sink upstream.FaultRecorder) (int64, bool) {
	if groupID <= 0 {
		return 0, false
	}
	if owner, ok := st.memo.Get(groupID); ok {
		return owner, owner != cache.NoOwner
	}

	v, _, _ := st.sf.Do(strconv.FormatInt(groupID, 10), func() (any, error) {
		owner := cache.NoOwner

		err := st.lim.Do(ctx, func() error {
			target := fmt.Sprintf("%s/v1/groups/%d", p.endpoints.Groups, groupID)
			raw := p.client.GetJSON(ctx, sink, target, "groups", map[string]any{"groupId": groupID})
			if raw == nil {
				return nil
			}

			var out struct {
				Owner struct {
					UserID int64 `json:"userId"`
				} `json:"owner"`
			}
			if jerr := json.Unmarshal(raw, &out); jerr == nil && out.Owner.UserID > 0 {
				owner = out.Owner.UserID
			}
			return nil
		})
		if err != nil {
			return cache.NoOwner, nil
		}

		st.memo.Set(groupID, owner)
		return owner, nil
	})

	owner := v.(int64)
	return owner, owner != cache.NoOwner
}

// assemble derives the summary from live bucket sizes and finalizes the
// result document.
func (p *Pipeline) assemble(st *runState, start time.Time) *Result {
	res := &Result{
		UserID: st.userID,
		Data:   st.catalog,
	}
	res.Summary = Summary{
		Places:     len(st.places),
		Universes:  len(st.universes),
		Gamepasses: len(st.catalog[TypeGamePass]),
		Clothing: len(st.catalog[TypeClassicTShirt]) +
			len(st.catalog[TypeClassicShirt]) +
			len(st.catalog[TypeClassicPants]),
	}
	res.Errors = st.sink.Faults()
	res.OK = len(res.Errors) == 0

	elapsed := time.Since(start)
	aggregationDuration.Observe(elapsed.Seconds())
	outcome := "ok"
	if !res.OK {
		outcome = "degraded"
	}
	aggregationRunsTotal.WithLabelValues(outcome).Inc()

	p.logger.Info().
		Int64("user_id", st.userID).
		Int("places", res.Summary.Places).
		Int("universes", res.Summary.Universes).
		Int("gamepasses", res.Summary.Gamepasses).
		Int("clothing", res.Summary.Clothing).
		Int("faults", len(res.Errors)).
		Dur("duration", elapsed).
		Msg("Aggregation complete")

	return res
}

// assetTypeIDFor maps a clothing bucket to its platform type id.
func assetTypeIDFor(bucket AssetType) int {
	switch bucket {
	case TypeClassicTShirt:
		return AssetTypeIDClassicTShirt
	case TypeClassicShirt:
		return AssetTypeIDClassicShirt
	case TypeClassicPants:
		return AssetTypeIDClassicPants
	case TypeGamePass:
		return AssetTypeIDGamePass
	default:
		return 0
	}
}

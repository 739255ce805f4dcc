package aggregate

// Clamping bounds for pipeline options. Caller-supplied values outside these
// ranges are pulled back in rather than rejected.
const (
	MinPageSize = 1
	MaxPageSize = 100

	MinPages = 1
	MaxPages = 100

	// MaxPlacesCap is the hard cap on places walked; the listing endpoint
	// returns at most 50 games per call.
	MaxPlacesCap = 50

	MaxConcurrency = 20
)

// Options configures one aggregation run.
type Options struct {
	// Concurrency bounds simultaneous upstream fan-out (default 5).
	Concurrency int

	// PageSize is the per-page item count requested from paginated
	// endpoints (default 100).
	PageSize int

	// IncludeGamepasses enables the game-pass discovery stages.
	IncludeGamepasses bool

	// IncludeClothing enables the inventory and catalog-enrichment stages.
	IncludeClothing bool

	// MaxPlaces truncates the place list (default and cap 50).
	MaxPlaces int

	// MaxUniversePages bounds game-pass paging per universe (default 5).
	MaxUniversePages int

	// MaxInventoryPages bounds inventory paging per clothing type (default 5).
	MaxInventoryPages int
}

// DefaultOptions returns the defaults used when the caller specifies nothing.
func DefaultOptions() Options {
	return Options{
		Concurrency:       5,
		PageSize:          100,
		IncludeGamepasses: true,
		IncludeClothing:   true,
		MaxPlaces:         MaxPlacesCap,
		MaxUniversePages:  5,
		MaxInventoryPages: 5,
	}
}

// Clamped returns a copy with every numeric field pulled into safe bounds.
// Zero values take the defaults.
func (o Options) Clamped() Options {
	def := DefaultOptions()
	o.Concurrency = clampInt(o.Concurrency, 1, MaxConcurrency, def.Concurrency)
	o.PageSize = clampInt(o.PageSize, MinPageSize, MaxPageSize, def.PageSize)
	o.MaxPlaces = clampInt(o.MaxPlaces, 1, MaxPlacesCap, def.MaxPlaces)
	o.MaxUniversePages = clampInt(o.MaxUniversePages, MinPages, MaxPages, def.MaxUniversePages)
	o.MaxInventoryPages = clampInt(o.MaxInventoryPages, MinPages, MaxPages, def.MaxInventoryPages)
	return o
}

func clampInt(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package aggregate implements the discovery pipeline that walks a user's
// monetizable assets (game passes and classic clothing) across the
// platform's APIs and merges them into one normalized catalog.
package aggregate

// AssetType is the catalog bucket key for a monetizable asset.
type AssetType string

// Catalog bucket keys. A catalog always carries all four, possibly empty.
const (
	TypeGamePass      AssetType = "GAMEPASS"
	TypeClassicTShirt AssetType = "CLASSIC_TSHIRT"
	TypeClassicShirt  AssetType = "CLASSIC_SHIRT"
	TypeClassicPants  AssetType = "CLASSIC_PANTS"
)

// Platform numeric asset-type ids.
const (
	AssetTypeIDClassicTShirt = 2
	AssetTypeIDClassicShirt  = 11
	AssetTypeIDClassicPants  = 12
	AssetTypeIDGamePass      = 34
)

// AssetTypes lists every bucket key a catalog carries.
var AssetTypes = []AssetType{TypeGamePass, TypeClassicTShirt, TypeClassicShirt, TypeClassicPants}

// clothingSpec binds a classic clothing bucket to its platform type id.
type clothingSpec struct {
	TypeID int
	Bucket AssetType
}

// clothingSpecs are the three classic clothing categories the inventory
// stage walks, in fixed order.
var clothingSpecs = []clothingSpec{
	{AssetTypeIDClassicTShirt, TypeClassicTShirt},
	{AssetTypeIDClassicShirt, TypeClassicShirt},
	{AssetTypeIDClassicPants, TypeClassicPants},
}

// AssetEntry is one discovered for-sale asset. Immutable once constructed;
// keyed by the platform's numeric asset id (as a string) in its bucket.
type AssetEntry struct {
	AssetName   string    `json:"AssetName"`
	AssetType   AssetType `json:"AssetType"`
	AssetTypeID int       `json:"AssetTypeId"`
	AssetPrice  float64   `json:"AssetPrice"`
}

// Catalog maps bucket keys to asset-id-keyed entries.
type Catalog map[AssetType]map[string]AssetEntry

// NewCatalog creates a catalog with all four buckets present and empty.
func NewCatalog() Catalog {
	c := make(Catalog, len(AssetTypes))
	for _, t := range AssetTypes {
		c[t] = make(map[string]AssetEntry)
	}
	return c
}

// Summary carries the per-stage counts of one aggregation run. Asset counts
// are derived from live bucket sizes at assembly, never tracked separately.
type Summary struct {
	Places     int `json:"places"`
	Universes  int `json:"universes"`
	Gamepasses int `json:"gamepasses"`
	Clothing   int `json:"clothing"`
}

// Result is the single response document of one aggregation run. OK is true
// iff zero faults were recorded, regardless of whether Data is empty.
type Result struct {
	OK      bool    `json:"ok"`
	UserID  int64   `json:"userId"`
	Summary Summary `json:"summary"`
	Data    Catalog `json:"data"`
	Errors  []Fault `json:"errors"`
}

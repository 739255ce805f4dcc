package aggregate

// Endpoints holds the base URLs of the upstream APIs the pipeline walks.
// Overridable so tests can point every stage at a stub server; production
// uses the defaults, which match the client's host allowlist.
type Endpoints struct {
	Games     string
	Apis      string
	Inventory string
	Catalog   string
	Groups    string
}

// DefaultEndpoints returns the platform's production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Games:     "https://games.roblox.com",
		Apis:      "https://apis.roblox.com",
		Inventory: "https://inventory.roblox.com",
		Catalog:   "https://catalog.roblox.com",
		Groups:    "https://groups.roblox.com",
	}
}

// withDefaults fills empty fields from DefaultEndpoints.
func (e Endpoints) withDefaults() Endpoints {
	def := DefaultEndpoints()
	if e.Games == "" {
		e.Games = def.Games
	}
	if e.Apis == "" {
		e.Apis = def.Apis
	}
	if e.Inventory == "" {
		e.Inventory = def.Inventory
	}
	if e.Catalog == "" {
		e.Catalog = def.Catalog
	}
	if e.Groups == "" {
		e.Groups = def.Groups
	}
	return e
}

package aggregate

import "testing"

func TestOptions_Clamped(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{
			name: "zero values take defaults",
			in:   Options{},
			want: Options{Concurrency: 5, PageSize: 100, MaxPlaces: 50, MaxUniversePages: 5, MaxInventoryPages: 5},
		},
		{
			name: "in-range values kept",
			in:   Options{Concurrency: 3, PageSize: 25, MaxPlaces: 10, MaxUniversePages: 2, MaxInventoryPages: 3},
			want: Options{Concurrency: 3, PageSize: 25, MaxPlaces: 10, MaxUniversePages: 2, MaxInventoryPages: 3},
		},
		{
			name: "values above caps pulled down",
			in:   Options{Concurrency: 100, PageSize: 500, MaxPlaces: 200, MaxUniversePages: 1000, MaxInventoryPages: 1000},
			want: Options{Concurrency: MaxConcurrency, PageSize: MaxPageSize, MaxPlaces: MaxPlacesCap, MaxUniversePages: MaxPages, MaxInventoryPages: MaxPages},
		},
		{
			name: "negative values pulled up",
			in:   Options{Concurrency: -1, PageSize: -1, MaxPlaces: -1, MaxUniversePages: -1, MaxInventoryPages: -1},
			want: Options{Concurrency: 1, PageSize: MinPageSize, MaxPlaces: 1, MaxUniversePages: MinPages, MaxInventoryPages: MinPages},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamped()
			if got.Concurrency != tt.want.Concurrency {
				t.Errorf("Concurrency = %d, want %d", got.Concurrency, tt.want.Concurrency)
			}
			if got.PageSize != tt.want.PageSize {
				t.Errorf("PageSize = %d, want %d", got.PageSize, tt.want.PageSize)
			}
			if got.MaxPlaces != tt.want.MaxPlaces {
				t.Errorf("MaxPlaces = %d, want %d", got.MaxPlaces, tt.want.MaxPlaces)
			}
			if got.MaxUniversePages != tt.want.MaxUniversePages {
				t.Errorf("MaxUniversePages = %d, want %d", got.MaxUniversePages, tt.want.MaxUniversePages)
			}
			if got.MaxInventoryPages != tt.want.MaxInventoryPages {
				t.Errorf("MaxInventoryPages = %d, want %d", got.MaxInventoryPages, tt.want.MaxInventoryPages)
			}
		})
	}
}

func TestOptions_ClampedKeepsFlags(t *testing.T) {
	in := Options{IncludeGamepasses: true, IncludeClothing: false}
	got := in.Clamped()
	if !got.IncludeGamepasses || got.IncludeClothing {
		t.Errorf("Clamped() flags = (%v, %v), want (true, false)", got.IncludeGamepasses, got.IncludeClothing)
	}
}

package aggregate

import (
	"encoding/json"
	"testing"
)

func TestClassifyCreator(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want creatorKind
	}{
		{"user string", `"User"`, creatorUser},
		{"group string", `"Group"`, creatorGroup},
		{"lowercase user", `"user"`, creatorUser},
		{"uppercase group", `"GROUP"`, creatorGroup},
		{"unknown string", `"Team"`, creatorAmbiguous},
		{"numeric one", `1`, creatorAmbiguous},
		{"numeric two", `2`, creatorAmbiguous},
		{"null", `null`, creatorAmbiguous},
		{"absent", ``, creatorAmbiguous},
		{"object", `{"type":"User"}`, creatorAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyCreator(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("classifyCreator(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   float64
		wantOK bool
	}{
		{"number", `100`, 100, true},
		{"float", `49.5`, 49.5, true},
		{"zero", `0`, 0, true},
		{"numeric string", `"250"`, 250, true},
		{"padded numeric string", `" 12 "`, 12, true},
		{"null", `null`, 0, false},
		{"absent", ``, 0, false},
		{"word string", `"free"`, 0, false},
		{"object", `{"amount":5}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePrice(json.RawMessage(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("parsePrice(%s) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parsePrice(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

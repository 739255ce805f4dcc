package aggregate

import (
	"encoding/json"
	"strconv"
	"strings"
)

// creatorKind classifies the catalog schema's creator-type field.
type creatorKind int

const (
	// creatorAmbiguous means the encoding could not be trusted; the
	// pipeline probes the creator id as a group and falls back to the
	// user rule.
	creatorAmbiguous creatorKind = iota
	creatorUser
	creatorGroup
)

// classifyCreator decides the creator kind from the raw creator-type value.
// The field has been observed as the strings "User"/"Group" and as numeric
// enums with inconsistent mappings across endpoints, so only the string
// encodings are trusted; every numeric value is treated as ambiguous and
// resolved by probing.
func classifyCreator(raw json.RawMessage) creatorKind {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return creatorAmbiguous
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		switch strings.ToLower(str) {
		case "user":
			return creatorUser
		case "group":
			return creatorGroup
		}
		return creatorAmbiguous
	}

	return creatorAmbiguous
}

// parsePrice parses a price field that upstream serves as a JSON number, a
// numeric string, or null. ok is false when no positive-or-zero numeric
// value could be read.
func parsePrice(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}

	return 0, false
}

package geo

import (
	"encoding/json"
	"math"
	"sort"
)

// Address is the structured part of a geocode result, when a provider has one.
type Address struct {
	Road     string `json:"road,omitempty"`
	Suburb   string `json:"suburb,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Candidate is one provider result normalised onto the canonical shape. It is
// produced per request and never persisted.
type Candidate struct {
	Coordinates           Coordinates     `json:"coordinates"`
	DisplayName           string          `json:"displayName,omitempty"`
	Granularity           Granularity     `json:"granularity"`
	EstimatedRadiusMeters *float64        `json:"estimatedRadiusMeters,omitempty"`
	Importance            float64         `json:"importance"`
	Address               Address         `json:"address"`
	Provider              string          `json:"provider,omitempty"`
	Raw                   json.RawMessage `json:"-"`
}

func (c Candidate) radius() float64 {
	if c.EstimatedRadiusMeters == nil {
		return math.Inf(1)
	}
	return *c.EstimatedRadiusMeters
}

// less orders by granularity desc, radius asc (missing radius last), then
// importance desc.
func less(a, b Candidate) bool {
	if ra, rb := a.Granularity.Rank(), b.Granularity.Rank(); ra != rb {
		return ra > rb
	}
	if ea, eb := a.radius(), b.radius(); ea != eb {
		return ea < eb
	}
	return a.Importance > b.Importance
}

// SortCandidates returns a stably sorted copy; the input is left untouched.
func SortCandidates(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

// Rank picks the best candidate, or nil for an empty list.
func Rank(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	best := SortCandidates(candidates)[0]
	return &best
}

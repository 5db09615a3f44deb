package geo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Granularity is the ordinal precision of a geocode result. Higher is more
// precise; the numeric value is the ranking weight.
type Granularity int

const (
	GranularityUnknown Granularity = iota
	GranularityCountry
	GranularityRegion
	GranularityCity
	GranularityNeighbourhood
	GranularityStreet
	GranularityExact
)

var granularityNames = map[Granularity]string{
	GranularityUnknown:       "unknown",
	GranularityCountry:       "country",
	GranularityRegion:        "region",
	GranularityCity:          "city",
	GranularityNeighbourhood: "neighbourhood",
	GranularityStreet:        "street",
	GranularityExact:         "exact",
}

// Rank returns the ordinal weight (exact=6 ... unknown=0).
func (g Granularity) Rank() int {
	if g < GranularityUnknown || g > GranularityExact {
		return 0
	}
	return int(g)
}

func (g Granularity) String() string {
	if name, ok := granularityNames[g]; ok {
		return name
	}
	return "unknown"
}

func (g Granularity) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *Granularity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("granularity: %w", err)
	}
	*g = ParseGranularity(s)
	return nil
}

// ParseGranularity maps a canonical name back to its value; unknown names
// yield GranularityUnknown.
func ParseGranularity(s string) Granularity {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range granularityNames {
		if name == s {
			return g
		}
	}
	return GranularityUnknown
}

// Vocabulary maps one provider's place-type words onto the canonical scale.
type Vocabulary map[string]Granularity

// Classify looks up the provider type. An unmapped type yields unknown.
func (v Vocabulary) Classify(placeType string) Granularity {
	if g, ok := v[strings.ToLower(strings.TrimSpace(placeType))]; ok {
		return g
	}
	return GranularityUnknown
}

// NominatimVocabulary covers OSM "type" values returned by Nominatim search.
var NominatimVocabulary = Vocabulary{
	"house":         GranularityExact,
	"building":      GranularityExact,
	"residential":   GranularityExact,
	"yes":           GranularityExact,
	"commercial":    GranularityExact,
	"apartments":    GranularityExact,
	"street":        GranularityStreet,
	"road":          GranularityStreet,
	"pedestrian":    GranularityStreet,
	"neighbourhood": GranularityNeighbourhood,
	"suburb":        GranularityNeighbourhood,
	"quarter":       GranularityNeighbourhood,
	"city":          GranularityCity,
	"town":          GranularityCity,
	"village":       GranularityCity,
	"municipality":  GranularityCity,
	"state":         GranularityRegion,
	"region":        GranularityRegion,
	"province":      GranularityRegion,
	"county":        GranularityRegion,
	"country":       GranularityCountry,
}

// MapboxVocabulary covers Mapbox v5 place_type values.
var MapboxVocabulary = Vocabulary{
	"address":      GranularityExact,
	"poi":          GranularityExact,
	"street":       GranularityStreet,
	"neighborhood": GranularityNeighbourhood,
	"locality":     GranularityNeighbourhood,
	"place":        GranularityCity,
	"district":     GranularityRegion,
	"region":       GranularityRegion,
	"country":      GranularityCountry,
}

// ClassifyNominatim classifies by OSM type, falling back to the class for
// place/house pairs that some Nominatim versions emit without a known type.
func ClassifyNominatim(placeType, placeClass string) Granularity {
	if g := NominatimVocabulary.Classify(placeType); g != GranularityUnknown {
		return g
	}
	if strings.EqualFold(placeClass, "place") && strings.EqualFold(placeType, "house") {
		return GranularityExact
	}
	return GranularityUnknown
}

// ClassifyMapbox classifies by the first (most specific) place_type entry.
func ClassifyMapbox(placeTypes []string) Granularity {
	if len(placeTypes) == 0 {
		return GranularityUnknown
	}
	return MapboxVocabulary.Classify(placeTypes[0])
}

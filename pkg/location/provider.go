// Package location turns coordinates and free text into ranked geocode
// candidates using external providers (Nominatim, Mapbox).
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"attendance/pkg/geo"
)

// ErrServiceUnavailable wraps every provider failure: non-2xx status,
// transport errors, timeouts and undecodable bodies.
var ErrServiceUnavailable = errors.New("location service unavailable")

// Provider is a forward geocoding source. Implementations return candidates
// in provider order; ranking is done by the caller.
type Provider interface {
	Name() string
	Forward(ctx context.Context, query string) ([]geo.Candidate, error)
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrServiceUnavailable, err)
}

func blank(query string) bool {
	return strings.TrimSpace(query) == ""
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*f = flexFloat(v)
	return nil
}

// splitResults decodes a JSON array into its elements so that one malformed
// element does not sink the whole response.
func splitResults(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

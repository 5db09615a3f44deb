package location

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"attendance/pkg/geo"
)

// Resolver chains providers and ranks their candidates. It is the boundary
// where provider failures stop: Forward, Reverse and Lookup never return
// errors to callers.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
}

// NewResolver builds a resolver that asks providers in the given order.
func NewResolver(logger *slog.Logger, providers ...Provider) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{providers: providers, logger: logger}
}

// Place is a resolved point with its best display name.
type Place struct {
	Coordinates geo.Coordinates `json:"coordinates"`
	DisplayName string          `json:"displayName"`
	Address     geo.Address     `json:"address"`
	Granularity geo.Granularity `json:"granularity"`
	Provider    string          `json:"provider,omitempty"`
	Fallback    bool            `json:"fallback"`
}

// Candidates returns the candidates of the first provider that yields any.
// When every provider fails, the last failure is returned.
func (r *Resolver) Candidates(ctx context.Context, query string) ([]geo.Candidate, error) {
	if blank(query) {
		return nil, nil
	}
	var lastErr error
	for _, p := range r.providers {
		candidates, err := p.Forward(ctx, query)
		if err != nil {
			r.logger.Warn("geocode_forward_failure", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	if lastErr == nil && len(r.providers) == 0 {
		lastErr = errors.New("no geocoding providers configured")
	}
	return nil, lastErr
}

// Forward returns the best-ranked candidate for a free-text query, or nil
// when nothing matched or every provider failed.
func (r *Resolver) Forward(ctx context.Context, query string) *geo.Candidate {
	candidates, err := r.Candidates(ctx, query)
	if err != nil {
		return nil
	}
	return geo.Rank(candidates)
}

// Lookup reverse-geocodes a point by forward-searching its "lat,lon" text.
// On any failure the fallback "Coordinates: lat, lon" place is returned.
func (r *Resolver) Lookup(ctx context.Context, c geo.Coordinates) Place {
	best := r.Forward(ctx, c.Query())
	if best == nil || best.DisplayName == "" {
		r.logger.Info("human_readable_failure", "coordinates", c.String())
		return Place{Coordinates: c, DisplayName: c.Fallback(), Fallback: true}
	}
	return Place{
		Coordinates: c,
		DisplayName: best.DisplayName,
		Address:     best.Address,
		Granularity: best.Granularity,
		Provider:    best.Provider,
	}
}

// Reverse returns only the display name of Lookup.
func (r *Resolver) Reverse(ctx context.Context, c geo.Coordinates) string {
	return r.Lookup(ctx, c).DisplayName
}

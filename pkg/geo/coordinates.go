package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinates is returned when a latitude or longitude is NaN,
// infinite or outside the WGS84 range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Coordinates is an immutable WGS84 point in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinates validates lat/lon and returns the point.
func NewCoordinates(lat, lon float64) (Coordinates, error) {
	c := Coordinates{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Validate reports whether the point is inside [-90,90] x [-180,180].
func (c Coordinates) Validate() error {
	if !isFinite(c.Latitude) || !isFinite(c.Longitude) {
		return fmt.Errorf("%w: latitude and longitude must be finite numbers", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

// String formats the point with six decimals, e.g. "12.971600, 77.594600".
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// Query renders the point the way providers accept it as free text ("lat,lon").
func (c Coordinates) Query() string {
	return fmt.Sprintf("%v,%v", c.Latitude, c.Longitude)
}

// Fallback is the display string used when no provider could name the point.
func (c Coordinates) Fallback() string {
	return "Coordinates: " + c.String()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

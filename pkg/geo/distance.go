package geo

import "math"

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points using
// the Haversine formula. Inputs are degrees and are trusted to be in range.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters for two Coordinates.
func Distance(a, b Coordinates) float64 {
	return DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// BoxRadiusMeters estimates the radius of a bounding box as half its diagonal,
// rounded to the nearest meter.
func BoxRadiusMeters(minLat, minLon, maxLat, maxLon float64) float64 {
	return math.Round(DistanceMeters(minLat, minLon, maxLat, maxLon) / 2)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

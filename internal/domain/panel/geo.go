package panel

import "math"

const earthRadiusKm = 6371.0088

// Location is a point in decimal degrees.
type Location struct {
	Lat float64
	Lon float64
}

// DistanceKm is the great-circle (haversine) distance between two points.
func DistanceKm(a, b Location) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

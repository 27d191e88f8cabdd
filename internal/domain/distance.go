package domain

import "math"

const earthRadiusMeters = 6371008.8

// Metric measures the distance between two coordinates. The unit is defined
// by the implementation and must match the threshold it is compared against.
type Metric interface {
	Distance(a, b Coordinate) float64
	Unit() string
}

// Haversine is the great-circle distance in meters.
type Haversine struct{}

func (Haversine) Unit() string { return "m" }

func (Haversine) Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Planar is the Euclidean distance over raw degrees.
type Planar struct{}

func (Planar) Unit() string { return "deg" }

func (Planar) Distance(a, b Coordinate) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}

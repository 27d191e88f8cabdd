package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
// A zero Lat/Lon with an empty FormattedAddress means "not found".
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider resolved the query to a place.
func (r GeocodingResult) Found() bool {
	return r.Lat != 0 || r.Lon != 0 || r.FormattedAddress != ""
}

// Coordinate returns the result as a coordinate.
func (r GeocodingResult) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon}
}

// Geocoder resolves free-text locations to coordinates.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}

package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 position stored inline on ride documents.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewPoint validates and returns a Point.
func NewPoint(lat, lng float64) (Point, error) {
	point := Point{Lat: lat, Lng: lng}
	if err := point.Validate(); err != nil {
		return Point{}, err
	}
	return point, nil
}

// Validate checks latitude/longitude ranges.
func (point Point) Validate() error {
	if math.IsNaN(point.Lat) || point.Lat < -90 || point.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(point.Lng) || point.Lng < -180 || point.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// earthRadiusKM is the mean Earth radius used by HaversineKM.
const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(from, to Point) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLat := (to.Lat - from.Lat) * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Round2 rounds to two decimals, half away from zero. The nudge keeps
// values like 0.575, stored as 0.57499999..., rounding up.
func Round2(v float64) float64 {
	return math.Round(v*100+math.Copysign(1e-7, v)) / 100
}

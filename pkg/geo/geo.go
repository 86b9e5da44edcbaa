// Package geo has small spherical geometry helpers for WGS84 points.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies within the WGS84 coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKm returns the great-circle (haversine) distance between a and b in kilometres.
func DistanceKm(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	sinDLat := math.Sin(radians(b.Lat-a.Lat) / 2)
	sinDLon := math.Sin(radians(b.Lon-a.Lon) / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

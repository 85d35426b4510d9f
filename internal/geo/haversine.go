// Package geo provides great-circle distance calculations over
// latitude/longitude pairs.
package geo

import "math"

// EarthRadiusM is the radius used for all haversine calculations in this
// package.
const EarthRadiusM = 6365396.0

// LatLng is a point in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// HaversineMeters returns the great-circle distance between a and b in
// meters. Commutative, non-negative, zero iff a == b.
func HaversineMeters(a, b LatLng) float64 {
	const deg2rad = math.Pi / 180

	lat1 := a.Lat * deg2rad
	lat2 := b.Lat * deg2rad
	dLat := (b.Lat - a.Lat) * deg2rad
	dLng := (b.Lng - a.Lng) * deg2rad

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

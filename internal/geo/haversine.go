// Package geo provides distance computation and postcode geocoding.
package geo

import "math"

// earthRadiusMiles fixes the distance unit for the whole pipeline: miles.
const earthRadiusMiles = 3959

// DistanceMiles computes the great-circle distance between two coordinate
// pairs using the haversine formula.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

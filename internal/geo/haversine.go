package geo

import "math"

const earthRadiusM = 6371000 // meters

// DistanceM returns the great-circle distance in meters between two lat/lon points
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// DistanceKm is DistanceM in kilometers
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceM(lat1, lon1, lat2, lon2) / 1000
}

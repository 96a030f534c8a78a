package dishes

import "math"

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

type bbox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	// LonBounded is false when the box wraps past a pole or the antimeridian,
	// where a plain BETWEEN on longitude would drop real matches.
	LonBounded bool
}

// boundingBox returns a lat/lon box that contains every point within
// radiusKm of the centre. It is only a prefilter for the SQL query.
func boundingBox(lat, lon, radiusKm float64) bbox {
	dLat := radiusKm / 111.0
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	dLon := radiusKm / (111.0 * cos)
	b := bbox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLon: lon - dLon,
		MaxLon: lon + dLon,
	}
	b.LonBounded = b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
	return b
}

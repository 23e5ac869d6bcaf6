package geohash

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// CellPrecision is the geohash length used for cache keys and marker cells
// (roughly 5km x 5km).
const CellPrecision = 5

// Encode coordinates into a geohash with specified precision.
func Encode(lat, lon float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// Cell returns the CellPrecision geohash containing the point.
func Cell(lat, lon float64) string {
	return Encode(lat, lon, CellPrecision)
}

// GetNeighbors returns the geohashes of neighboring cells.
func GetNeighbors(hash string) []string {
	return geohash.Neighbors(hash)
}

// CellAndNeighbors returns the cell containing the point followed by its
// eight neighbours.
func CellAndNeighbors(lat, lon float64) []string {
	cell := Cell(lat, lon)
	return append([]string{cell}, GetNeighbors(cell)...)
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

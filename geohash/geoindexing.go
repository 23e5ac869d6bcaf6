package geohash

import (
	"errors"
	"fmt"

	"fleet-tracking-system/models"
)

type GeoIndexingTechnique string

const (
	RTreeTechnique    GeoIndexingTechnique = "rtree"
	QuadtreeTechnique GeoIndexingTechnique = "quadtree"
)

var ErrNoNearbyPoints = errors.New("no nearby points found after maximum retries")

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Extend grows b to include the point.
func (b Bounds) Extend(lat, lon float64) Bounds {
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	if lon < b.MinLon {
		b.MinLon = lon
	}
	if lon > b.MaxLon {
		b.MaxLon = lon
	}
	return b
}

// WorldBounds covers every valid coordinate.
var WorldBounds = Bounds{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}

// Index is a spatial index over vehicle ids. It is rebuilt wholesale from a
// snapshot; positions change on every tick so incremental updates buy
// nothing.
type Index interface {
	Rebuild(vehicles []models.Vehicle)
	// Within returns the ids of vehicles inside b.
	Within(b Bounds) []string
	// Nearby returns the ids of vehicles within radius degrees of the point.
	Nearby(lat, lon, radius float64) []string
	Len() int
}

// NewIndex returns an empty index of the given technique.
func NewIndex(technique GeoIndexingTechnique) (Index, error) {
	switch technique {
	case RTreeTechnique, "":
		return NewRTreeIndex(), nil
	case QuadtreeTechnique:
		return NewQuadtreeIndex(WorldBounds), nil
	default:
		return nil, fmt.Errorf("unsupported geo-indexing technique %q", technique)
	}
}

// SearchNearbyWithRetries doubles the search radius, starting from radius
// degrees, until the index yields at least one id or maxRetries is spent.
func SearchNearbyWithRetries(idx Index, lat, lon, radius float64, maxRetries int) ([]string, error) {
	for i := 0; i < maxRetries; i++ {
		if results := idx.Nearby(lat, lon, radius); len(results) > 0 {
			return results, nil
		}
		radius *= 2
	}
	return nil, ErrNoNearbyPoints
}

package geohash

import (
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"

	"fleet-tracking-system/models"
)

// pointTolerance is the side of the box each vehicle occupies in the tree.
const pointTolerance = 0.00001

// spatialVehicle wraps a vehicle position to satisfy the rtreego.Spatial interface
type spatialVehicle struct {
	id    string
	point rtreego.Point
}

func (v *spatialVehicle) Bounds() rtreego.Rect {
	return v.point.ToRect(pointTolerance)
}

// RTreeIndex is an Index backed by an R-tree.
type RTreeIndex struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
}

func NewRTreeIndex() *RTreeIndex {
	return &RTreeIndex{tree: rtreego.NewTree(2, 25, 50)}
}

func (idx *RTreeIndex) Rebuild(vehicles []models.Vehicle) {
	objs := make([]rtreego.Spatial, 0, len(vehicles))
	for _, v := range vehicles {
		objs = append(objs, &spatialVehicle{id: v.ID, point: rtreego.Point{v.Latitude, v.Longitude}})
	}
	tree := rtreego.NewTree(2, 25, 50, objs...)

	idx.mu.Lock()
	idx.tree = tree
	idx.mu.Unlock()
}

func (idx *RTreeIndex) Within(b Bounds) []string {
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.MinLat, b.MinLon},
		rtreego.Point{b.MaxLat, b.MaxLon},
	)
	if err != nil {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return ids(idx.tree.SearchIntersect(rect), func(*spatialVehicle) bool { return true })
}

// Nearby searches for vehicles within a given radius
func (idx *RTreeIndex) Nearby(lat, lon, radius float64) []string {
	center := rtreego.Point{lat, lon}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return ids(idx.tree.SearchIntersect(center.ToRect(radius)), func(v *spatialVehicle) bool {
		return math.Hypot(v.point[0]-lat, v.point[1]-lon) <= radius
	})
}

func (idx *RTreeIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Size()
}

func ids(found []rtreego.Spatial, keep func(*spatialVehicle) bool) []string {
	out := make([]string, 0, len(found))
	for _, s := range found {
		if v, ok := s.(*spatialVehicle); ok && keep(v) {
			out = append(out, v.id)
		}
	}
	return out
}

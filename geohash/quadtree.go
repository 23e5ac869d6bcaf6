package geohash

import (
	"math"
	"sync"

	"fleet-tracking-system/models"
)

// nodeCapacity is how many points a node holds before it subdivides.
const nodeCapacity = 4

// maxDepth bounds subdivision so coincident points cannot recurse forever.
const maxDepth = 16

// Point represents a vehicle position in lat/lon space
type Point struct {
	ID       string
	Lat, Lon float64
}

// QuadtreeNode represents a node in the quadtree
type QuadtreeNode struct {
	Bounds   Bounds
	Points   []Point
	Children [4]*QuadtreeNode
	depth    int
}

// QuadtreeIndex is an Index backed by a region quadtree.
type QuadtreeIndex struct {
	mu     sync.RWMutex
	bounds Bounds
	root   *QuadtreeNode
	size   int
}

// NewQuadtreeIndex initializes a new quadtree with given bounds
func NewQuadtreeIndex(bounds Bounds) *QuadtreeIndex {
	return &QuadtreeIndex{bounds: bounds, root: &QuadtreeNode{Bounds: bounds}}
}

func (qt *QuadtreeIndex) Rebuild(vehicles []models.Vehicle) {
	root := &QuadtreeNode{Bounds: qt.bounds}
	size := 0
	for _, v := range vehicles {
		if root.insert(Point{ID: v.ID, Lat: v.Latitude, Lon: v.Longitude}) {
			size++
		}
	}
	qt.mu.Lock()
	qt.root = root
	qt.size = size
	qt.mu.Unlock()
}

func (qt *QuadtreeIndex) Within(b Bounds) []string {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	var out []string
	qt.root.walk(func(n *QuadtreeNode) bool { return n.intersectsBounds(b) }, func(p Point) {
		if b.Contains(p.Lat, p.Lon) {
			out = append(out, p.ID)
		}
	})
	return out
}

// Nearby finds points within radius degrees of the given position.
func (qt *QuadtreeIndex) Nearby(lat, lon, radius float64) []string {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	var out []string
	qt.root.walk(func(n *QuadtreeNode) bool { return n.intersectsCircle(lat, lon, radius) }, func(p Point) {
		if math.Hypot(p.Lat-lat, p.Lon-lon) <= radius {
			out = append(out, p.ID)
		}
	})
	return out
}

func (qt *QuadtreeIndex) Len() int {
	qt.mu.RLock()
	defer qt.mu.RUnlock()
	return qt.size
}

// insert adds a point to a QuadtreeNode, creating children nodes if
// necessary. Points outside the node's bounds are rejected.
func (node *QuadtreeNode) insert(point Point) bool {
	if !node.Bounds.Contains(point.Lat, point.Lon) {
		return false
	}
	if node.Children[0] == nil {
		if len(node.Points) < nodeCapacity || node.depth >= maxDepth {
			node.Points = append(node.Points, point)
			return true
		}
		node.subdivide()
	}
	for _, child := range node.Children {
		if child.insert(point) {
			return true
		}
	}
	return false
}

// subdivide splits the node into four child nodes and pushes its points
// down into them.
func (node *QuadtreeNode) subdivide() {
	b := node.Bounds
	midLat := (b.MinLat + b.MaxLat) / 2
	midLon := (b.MinLon + b.MaxLon) / 2
	d := node.depth + 1
	node.Children[0] = &QuadtreeNode{Bounds: Bounds{b.MinLat, b.MinLon, midLat, midLon}, depth: d}
	node.Children[1] = &QuadtreeNode{Bounds: Bounds{midLat, b.MinLon, b.MaxLat, midLon}, depth: d}
	node.Children[2] = &QuadtreeNode{Bounds: Bounds{b.MinLat, midLon, midLat, b.MaxLon}, depth: d}
	node.Children[3] = &QuadtreeNode{Bounds: Bounds{midLat, midLon, b.MaxLat, b.MaxLon}, depth: d}

	points := node.Points
	node.Points = nil
	for _, p := range points {
		for _, child := range node.Children {
			if child.insert(p) {
				break
			}
		}
	}
}

func (node *QuadtreeNode) walk(visit func(*QuadtreeNode) bool, emit func(Point)) {
	if !visit(node) {
		return
	}
	for _, p := range node.Points {
		emit(p)
	}
	if node.Children[0] != nil {
		for _, child := range node.Children {
			child.walk(visit, emit)
		}
	}
}

func (node *QuadtreeNode) intersectsBounds(b Bounds) bool {
	return b.MinLat <= node.Bounds.MaxLat && b.MaxLat >= node.Bounds.MinLat &&
		b.MinLon <= node.Bounds.MaxLon && b.MaxLon >= node.Bounds.MinLon
}

// intersectsCircle checks if a circle intersects with the node's bounds
func (node *QuadtreeNode) intersectsCircle(lat, lon, radius float64) bool {
	closestLat := math.Max(node.Bounds.MinLat, math.Min(lat, node.Bounds.MaxLat))
	closestLon := math.Max(node.Bounds.MinLon, math.Min(lon, node.Bounds.MaxLon))
	return math.Hypot(closestLat-lat, closestLon-lon) <= radius
}

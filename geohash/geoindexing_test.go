package geohash

import (
	"errors"
	"math"
	"sort"
	"testing"

	"fleet-tracking-system/models"
)

var indexVehicles = []models.Vehicle{
	{ID: "bus-1", Latitude: 40.7580, Longitude: -73.9855},
	{ID: "bus-2", Latitude: 40.7589, Longitude: -73.9441},
	{ID: "bus-3", Latitude: 40.8075, Longitude: -73.9626},
	{ID: "bus-4", Latitude: 40.8021, Longitude: -73.9570},
	{ID: "far", Latitude: 51.5072, Longitude: -0.1276},
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIndexes(t *testing.T) {
	for _, technique := range []GeoIndexingTechnique{RTreeTechnique, QuadtreeTechnique} {
		t.Run(string(technique), func(t *testing.T) {
			idx, err := NewIndex(technique)
			if err != nil {
				t.Fatal(err)
			}
			idx.Rebuild(indexVehicles)
			if idx.Len() != len(indexVehicles) {
				t.Errorf("Len = %d", idx.Len())
			}

			uptown := Bounds{MinLat: 40.79, MinLon: -73.97, MaxLat: 40.81, MaxLon: -73.95}
			if got := sorted(idx.Within(uptown)); !equal(got, []string{"bus-3", "bus-4"}) {
				t.Errorf("Within(uptown) = %v", got)
			}

			if got := idx.Nearby(40.7580, -73.9855, 0.001); !equal(got, []string{"bus-1"}) {
				t.Errorf("Nearby(bus-1) = %v", got)
			}
			if got := idx.Nearby(0, 0, 1); len(got) != 0 {
				t.Errorf("Nearby(0,0) = %v", got)
			}

			idx.Rebuild(indexVehicles[:1])
			if idx.Len() != 1 {
				t.Errorf("Len after rebuild = %d", idx.Len())
			}
		})
	}
}

func TestNewIndexUnsupported(t *testing.T) {
	if _, err := NewIndex("kdtree"); err == nil {
		t.Error("expected error")
	}
}

func TestSearchNearbyWithRetries(t *testing.T) {
	idx := NewRTreeIndex()
	idx.Rebuild(indexVehicles)

	got, err := SearchNearbyWithRetries(idx, 40.70, -74.00, 0.01, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equal(got, []string{"bus-1"}) {
		t.Errorf("got %v", got)
	}

	if _, err := SearchNearbyWithRetries(idx, -60, 100, 0.01, 3); !errors.Is(err, ErrNoNearbyPoints) {
		t.Errorf("err = %v", err)
	}
}

func TestQuadtreeCoincidentPoints(t *testing.T) {
	qt := NewQuadtreeIndex(WorldBounds)
	var vs []models.Vehicle
	for i := 0; i < 20; i++ {
		vs = append(vs, models.Vehicle{ID: string(rune('a' + i)), Latitude: 1, Longitude: 1})
	}
	qt.Rebuild(vs)
	if got := qt.Nearby(1, 1, 0.0001); len(got) != 20 {
		t.Errorf("found %d of 20 coincident points", len(got))
	}
}

func TestDistanceKm(t *testing.T) {
	// Central Station to Financial District, about 6km.
	d := DistanceKm(40.7580, -73.9855, 40.7074, -74.0113)
	if math.Abs(d-6.05) > 0.5 {
		t.Errorf("distance = %.2f km", d)
	}
	if DistanceKm(1, 1, 1, 1) != 0 {
		t.Error("zero distance expected")
	}
}

func TestCellAndNeighbors(t *testing.T) {
	cells := CellAndNeighbors(40.7580, -73.9855)
	if len(cells) != 9 {
		t.Fatalf("cells = %v", cells)
	}
	if cells[0] != Cell(40.7580, -73.9855) || len(cells[0]) != CellPrecision {
		t.Errorf("cell = %s", cells[0])
	}
	seen := map[string]bool{}
	for _, c := range cells {
		if seen[c] {
			t.Errorf("duplicate cell %s", c)
		}
		seen[c] = true
	}
}

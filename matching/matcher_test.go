package matching

import (
	"errors"
	"testing"
	"time"

	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/geohash"
	"fleet-tracking-system/models"
)

func TestFindNearestVehicle(t *testing.T) {
	vehicles := fixtures.Default(time.Now()).Vehicles
	for _, technique := range []geohash.GeoIndexingTechnique{geohash.RTreeTechnique, geohash.QuadtreeTechnique} {
		m, err := NewMatcher(technique)
		if err != nil {
			t.Fatal(err)
		}
		// Near Campus North, where bus-3 sits offline; the nearest active
		// vehicle is bus-2 at City Hall.
		match, err := m.FindNearestVehicle(vehicles, 40.8075, -73.9626)
		if err != nil {
			t.Fatalf("%s: %v", technique, err)
		}
		if match.Vehicle.ID != "bus-2" {
			t.Errorf("%s: nearest = %s", technique, match.Vehicle.ID)
		}
		if match.DistanceKm <= 0 {
			t.Errorf("%s: distance = %v", technique, match.DistanceKm)
		}
	}
}

func TestFindNearestVehicleNoneActive(t *testing.T) {
	m, _ := NewMatcher(geohash.RTreeTechnique)
	vehicles := []models.Vehicle{{ID: "x", Status: models.StatusOffline}}
	if _, err := m.FindNearestVehicle(vehicles, 0, 0); !errors.Is(err, ErrNoActiveVehicles) {
		t.Errorf("err = %v", err)
	}
}

func TestEstimatorNextArrival(t *testing.T) {
	m, _ := NewMatcher(geohash.RTreeTechnique)
	est := &Estimator{Matcher: m, SpeedKmh: 20}
	route := models.Route{ID: "r", Stops: []models.Stop{{Name: "A", Latitude: 40.0, Longitude: -74.0}}}

	// One degree of latitude is about 111km: 0.01 degrees is ~1.11km, or
	// ~3.3 minutes at 20km/h.
	vehicles := []models.Vehicle{{ID: "v", Latitude: 40.01, Longitude: -74.0, Status: models.StatusActive}}
	eta, ok := est.NextArrival(route, vehicles)
	if !ok {
		t.Fatal("expected estimate")
	}
	if eta < 3*time.Minute || eta > 4*time.Minute {
		t.Errorf("eta = %v", eta)
	}

	if _, ok := est.NextArrival(models.Route{ID: "empty"}, vehicles); ok {
		t.Error("route without stops should have no estimate")
	}
}

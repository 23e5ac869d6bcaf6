package fleet

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/logging"
	"fleet-tracking-system/models"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestTickMovesOnlyActiveVehicles(t *testing.T) {
	prev := fixtures.Default(testNow.Add(-time.Minute)).Vehicles
	src := NewJitterSource(DefaultJitter, 1)

	for round := 0; round < 50; round++ {
		next := Tick(prev, src, testNow)
		if len(next) != len(prev) {
			t.Fatalf("len = %d, want %d", len(next), len(prev))
		}
		for i := range prev {
			p, n := prev[i], next[i]
			if p.Status != models.StatusActive {
				if n != p {
					t.Errorf("%s (%s) changed: %+v -> %+v", p.ID, p.Status, p, n)
				}
				continue
			}
			if d := math.Abs(n.Latitude - p.Latitude); d > DefaultJitter {
				t.Errorf("%s latitude moved %v", p.ID, d)
			}
			if d := math.Abs(n.Longitude - p.Longitude); d > DefaultJitter {
				t.Errorf("%s longitude moved %v", p.ID, d)
			}
			if !n.LastUpdate.Equal(testNow) {
				t.Errorf("%s last update = %v", p.ID, n.LastUpdate)
			}
		}
	}
}

func TestTickDoesNotModifyInput(t *testing.T) {
	prev := fixtures.Default(testNow).Vehicles
	before := append([]models.Vehicle(nil), prev...)
	Tick(prev, FixedSource{DLat: 0.0004, DLon: -0.0004}, testNow.Add(time.Second))
	for i := range prev {
		if prev[i] != before[i] {
			t.Errorf("input %d modified", i)
		}
	}
}

func TestFilterByRoute(t *testing.T) {
	vehicles := []models.Vehicle{
		{ID: "a", RouteID: "route-1"},
		{ID: "b", RouteID: "route-2"},
		{ID: "c", RouteID: "route-1"},
	}

	got := FilterByRoute(vehicles, "route-1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("route-1 = %+v", got)
	}
	if got := FilterByRoute(vehicles, "route-3"); len(got) != 0 {
		t.Errorf("route-3 = %+v", got)
	}
	if got := FilterByRoute(vehicles, ""); len(got) != 3 {
		t.Errorf("all = %+v", got)
	}
}

func newTestStore() *Store {
	return NewStore(fixtures.Default(testNow).Vehicles, FixedSource{DLat: 0.0001, DLon: 0.0002},
		WithClock(func() time.Time { return testNow }), WithLogger(logging.Discard()))
}

func TestStoreApplyFix(t *testing.T) {
	s := newTestStore()
	fixTime := testNow.Add(5 * time.Second)

	if err := s.ApplyFix("bus-3", models.PositionFix{Latitude: 1, Longitude: 2, Timestamp: fixTime}); err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}
	v, err := s.Get("bus-3")
	if err != nil {
		t.Fatal(err)
	}
	if v.Latitude != 1 || v.Longitude != 2 || !v.LastUpdate.Equal(fixTime) {
		t.Errorf("bus-3 = %+v", v)
	}

	err = s.ApplyFix("bus-99", models.PositionFix{})
	if !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("unknown vehicle err = %v", err)
	}
}

func TestStoreSetStatus(t *testing.T) {
	s := newTestStore()
	if err := s.SetStatus("bus-3", models.StatusActive); err != nil {
		t.Fatal(err)
	}
	if c := s.Counts(); c.Active != 3 || c.Offline != 0 || c.Maintenance != 1 || c.Total != 4 {
		t.Errorf("counts = %+v", c)
	}
	if err := s.SetStatus("bus-3", "parked"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := newTestStore()

	var mu sync.Mutex
	var calls int
	cancel := s.Subscribe(func(vs []models.Vehicle) {
		mu.Lock()
		calls++
		mu.Unlock()
		vs[0].ID = "mutated"
	})

	s.Tick()
	if v, _ := s.Get("bus-1"); v.ID != "bus-1" {
		t.Error("listener mutation leaked into the store")
	}
	cancel()
	s.Tick()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStoreFilterScenario(t *testing.T) {
	s := NewStore([]models.Vehicle{
		{ID: "v1", RouteID: "route-1", Status: models.StatusActive},
		{ID: "v2", RouteID: "route-2", Status: models.StatusActive},
		{ID: "v3", RouteID: "route-1", Status: models.StatusOffline},
	}, FixedSource{})

	got := s.Filter("route-1")
	if len(got) != 2 || got[0].ID != "v1" || got[1].ID != "v3" {
		t.Errorf("Filter(route-1) = %+v", got)
	}
}

func TestStoreRun(t *testing.T) {
	s := newTestStore()
	ticked := make(chan struct{}, 1)
	s.Subscribe(func([]models.Vehicle) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx, time.Millisecond) }()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestJitterSourceBounds(t *testing.T) {
	src := NewJitterSource(0, 42)
	if src.Max != DefaultJitter {
		t.Fatalf("Max = %v", src.Max)
	}
	for i := 0; i < 1000; i++ {
		dLat, dLon := src.Offset()
		if math.Abs(dLat) > DefaultJitter || math.Abs(dLon) > DefaultJitter {
			t.Fatalf("offset (%v, %v) out of bounds", dLat, dLon)
		}
	}
}

// Package fixtures holds the mock fleet the service starts with. Fixture data
// is constructed explicitly and handed to the stores; nothing here is global
// mutable state.
package fixtures

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/jaswdr/faker"
	"github.com/lucsky/cuid"
	"gopkg.in/yaml.v3"

	"fleet-tracking-system/models"
)

type DriverProfile struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	VehicleID string `yaml:"vehicle_id"`
	RouteID   string `yaml:"route_id"`
}

type AdminProfile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Fixture struct {
	Routes   []models.Route
	Vehicles []models.Vehicle
	Driver   DriverProfile
	Admin    AdminProfile
}

// Route returns the fixture route with the given id.
func (f *Fixture) Route(id string) (models.Route, bool) {
	for _, r := range f.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return models.Route{}, false
}

// Vehicle returns the fixture vehicle with the given id.
func (f *Fixture) Vehicle(id string) (models.Vehicle, bool) {
	for _, v := range f.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return models.Vehicle{}, false
}

// Default returns the built-in demo fleet: two routes, four buses and the
// demo driver and admin profiles. Vehicle timestamps are relative to now.
func Default(now time.Time) *Fixture {
	return &Fixture{
		Routes: []models.Route{
			{
				ID:        "route-1",
				Name:      "Downtown Express",
				Color:     "#3b82f6",
				Frequency: "5-10 min",
				Stops: []models.Stop{
					{Name: "Central Station", Latitude: 40.7580, Longitude: -73.9855},
					{Name: "City Hall", Latitude: 40.7589, Longitude: -73.9441},
					{Name: "Financial District", Latitude: 40.7074, Longitude: -74.0113},
				},
			},
			{
				ID:        "route-2",
				Name:      "University Line",
				Color:     "#10b981",
				Frequency: "5-10 min",
				Stops: []models.Stop{
					{Name: "Campus North", Latitude: 40.8075, Longitude: -73.9626},
					{Name: "Student Center", Latitude: 40.8021, Longitude: -73.9570},
					{Name: "Library Square", Latitude: 40.7967, Longitude: -73.9514},
				},
			},
		},
		Vehicles: []models.Vehicle{
			{ID: "bus-1", Registration: "NYC-1001", RouteID: "route-1", Latitude: 40.7580, Longitude: -73.9855,
				LastUpdate: now, Status: models.StatusActive},
			{ID: "bus-2", Registration: "NYC-1002", RouteID: "route-1", Latitude: 40.7589, Longitude: -73.9441,
				LastUpdate: now.Add(-30 * time.Second), Status: models.StatusActive},
			{ID: "bus-3", Registration: "NYC-2001", RouteID: "route-2", Latitude: 40.8075, Longitude: -73.9626,
				LastUpdate: now.Add(-5 * time.Minute), Status: models.StatusOffline},
			{ID: "bus-4", Registration: "NYC-2002", RouteID: "route-2", Latitude: 40.8021, Longitude: -73.9570,
				LastUpdate: now.Add(-time.Minute), Status: models.StatusMaintenance},
		},
		Driver: DriverProfile{ID: "driver-1", Name: "John Smith", VehicleID: "bus-1", RouteID: "route-1"},
		Admin:  AdminProfile{ID: "admin-1", Name: "Sarah Johnson"},
	}
}

type fileVehicle struct {
	models.Vehicle `yaml:",inline"`
	StaleFor       time.Duration `yaml:"stale_for"`
}

type file struct {
	Routes   []models.Route `yaml:"routes"`
	Vehicles []fileVehicle  `yaml:"vehicles"`
	Driver   DriverProfile  `yaml:"driver"`
	Admin    AdminProfile   `yaml:"admin"`
}

// Load reads a fixture from a YAML file. Each vehicle's last update is now
// minus its stale_for duration.
func Load(path string, now time.Time) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw file
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	f := &Fixture{Routes: raw.Routes, Driver: raw.Driver, Admin: raw.Admin}
	for _, fv := range raw.Vehicles {
		v := fv.Vehicle
		if v.Status == "" {
			v.Status = models.StatusOffline
		}
		v.LastUpdate = now.Add(-fv.StaleFor)
		f.Vehicles = append(f.Vehicles, v)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

// Validate checks referential integrity between vehicles, routes and the
// demo profiles.
func (f *Fixture) Validate() error {
	routes := make(map[string]bool, len(f.Routes))
	for _, r := range f.Routes {
		if r.ID == "" {
			return fmt.Errorf("route %q has no id", r.Name)
		}
		if routes[r.ID] {
			return fmt.Errorf("duplicate route %s", r.ID)
		}
		routes[r.ID] = true
	}
	vehicles := make(map[string]bool, len(f.Vehicles))
	for _, v := range f.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle %q has no id", v.Registration)
		}
		if vehicles[v.ID] {
			return fmt.Errorf("duplicate vehicle %s", v.ID)
		}
		if !v.Status.Valid() {
			return fmt.Errorf("vehicle %s: unknown status %q", v.ID, v.Status)
		}
		if v.RouteID != "" && !routes[v.RouteID] {
			return fmt.Errorf("vehicle %s: unknown route %s", v.ID, v.RouteID)
		}
		vehicles[v.ID] = true
	}
	if f.Driver.VehicleID != "" && !vehicles[f.Driver.VehicleID] {
		return fmt.Errorf("driver %s: unknown vehicle %s", f.Driver.ID, f.Driver.VehicleID)
	}
	if f.Driver.RouteID != "" && !routes[f.Driver.RouteID] {
		return fmt.Errorf("driver %s: unknown route %s", f.Driver.ID, f.Driver.RouteID)
	}
	return nil
}

// Generate adds n demo vehicles spread around the stops of the fixture's
// routes. Roughly 70% are active, 20% offline and 10% in maintenance.
func (f *Fixture) Generate(n int, seed int64, now time.Time) {
	if n <= 0 || len(f.Routes) == 0 {
		return
	}
	rng := rand.New(rand.NewSource(seed))
	fake := faker.NewWithSeed(rand.NewSource(seed))

	for i := 0; i < n; i++ {
		route := f.Routes[i%len(f.Routes)]
		lat, lon := 40.7580, -73.9855
		if len(route.Stops) > 0 {
			stop := route.Stops[rng.Intn(len(route.Stops))]
			lat, lon = stop.Latitude, stop.Longitude
		}

		status := models.StatusActive
		switch roll := fake.IntBetween(0, 9); {
		case roll == 9:
			status = models.StatusMaintenance
		case roll >= 7:
			status = models.StatusOffline
		}

		f.Vehicles = append(f.Vehicles, models.Vehicle{
			ID:           "veh-" + cuid.New(),
			Registration: fake.Numerify("DMO-####"),
			RouteID:      route.ID,
			Latitude:     lat + (rng.Float64()-0.5)*0.01,
			Longitude:    lon + (rng.Float64()-0.5)*0.01,
			LastUpdate:   now.Add(-time.Duration(rng.Intn(300)) * time.Second),
			Status:       status,
		})
	}
}

package matching

import (
	"errors"
	"fmt"
	"math"
	"time"

	"fleet-tracking-system/geohash"
	"fleet-tracking-system/models"
)

var ErrNoActiveVehicles = errors.New("no active vehicles nearby")

const (
	initialRadius = 0.01 // degrees, about 1km
	maxRetries    = 12
)

// Match is the outcome of a nearest-vehicle search.
type Match struct {
	Vehicle    models.Vehicle `json:"vehicle"`
	DistanceKm float64        `json:"distance_km"`
}

// Matcher finds the active vehicle nearest to a point.
type Matcher struct {
	technique geohash.GeoIndexingTechnique
}

func NewMatcher(technique geohash.GeoIndexingTechnique) (*Matcher, error) {
	if _, err := geohash.NewIndex(technique); err != nil {
		return nil, err
	}
	return &Matcher{technique: technique}, nil
}

// FindNearestVehicle widens the search around (lat, lon) until it finds
// active vehicles, then returns the closest by great-circle distance.
func (m *Matcher) FindNearestVehicle(vehicles []models.Vehicle, lat, lon float64) (*Match, error) {
	byID := make(map[string]models.Vehicle, len(vehicles))
	active := make([]models.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Status == models.StatusActive {
			active = append(active, v)
			byID[v.ID] = v
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveVehicles
	}

	idx, err := geohash.NewIndex(m.technique)
	if err != nil {
		return nil, err
	}
	idx.Rebuild(active)

	ids, err := geohash.SearchNearbyWithRetries(idx, lat, lon, initialRadius, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoActiveVehicles, err)
	}

	var best *Match
	for _, id := range ids {
		v := byID[id]
		d := geohash.DistanceKm(lat, lon, v.Latitude, v.Longitude)
		if best == nil || d < best.DistanceKm {
			best = &Match{Vehicle: v, DistanceKm: d}
		}
	}
	return best, nil
}

// Estimator predicts arrivals at a route's first stop assuming vehicles
// travel in a straight line at a constant average speed.
type Estimator struct {
	Matcher  *Matcher
	SpeedKmh float64
}

func (e *Estimator) NextArrival(route models.Route, vehicles []models.Vehicle) (time.Duration, bool) {
	if len(route.Stops) == 0 || e.SpeedKmh <= 0 {
		return 0, false
	}
	stop := route.Stops[0]
	match, err := e.Matcher.FindNearestVehicle(vehicles, stop.Latitude, stop.Longitude)
	if err != nil {
		return 0, false
	}
	hours := match.DistanceKm / e.SpeedKmh
	return time.Duration(math.Round(hours * float64(time.Hour))), true
}

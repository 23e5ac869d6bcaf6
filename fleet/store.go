// Package fleet keeps the live position and status of every tracked vehicle.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fleet-tracking-system/models"
)

var ErrVehicleNotFound = errors.New("vehicle not found")

// Tick returns a new vehicle list in which every active vehicle has been
// displaced by src and stamped with now. Offline and maintenance vehicles
// are copied through untouched. prev is not modified.
func Tick(prev []models.Vehicle, src PositionSource, now time.Time) []models.Vehicle {
	next := make([]models.Vehicle, len(prev))
	for i, v := range prev {
		if v.Status == models.StatusActive {
			dLat, dLon := src.Offset()
			v.Latitude += dLat
			v.Longitude += dLon
			v.LastUpdate = now
		}
		next[i] = v
	}
	return next
}

// FilterByRoute returns the vehicles serving routeID in their original
// order. An empty routeID selects every vehicle.
func FilterByRoute(vehicles []models.Vehicle, routeID string) []models.Vehicle {
	out := make([]models.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if routeID == "" || v.RouteID == routeID {
			out = append(out, v)
		}
	}
	return out
}

type StatusCounts struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Offline     int `json:"offline"`
	Maintenance int `json:"maintenance"`
}

func CountStatuses(vehicles []models.Vehicle) StatusCounts {
	c := StatusCounts{Total: len(vehicles)}
	for _, v := range vehicles {
		switch v.Status {
		case models.StatusActive:
			c.Active++
		case models.StatusOffline:
			c.Offline++
		case models.StatusMaintenance:
			c.Maintenance++
		}
	}
	return c
}

type Listener func(vehicles []models.Vehicle)

// Store holds the current vehicle list. Each mutation computes the next list
// from the previous one inside a single critical section. Listeners are then
// called in mutation order with their own copy; they may read the store but
// must not mutate it.
type Store struct {
	mu        sync.RWMutex
	notify    sync.Mutex
	vehicles  []models.Vehicle
	src       PositionSource
	now       func() time.Time
	logger    *slog.Logger
	listeners map[int]Listener
	nextID    int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(initial []models.Vehicle, src PositionSource, opts ...Option) *Store {
	s := &Store{
		vehicles:  append([]models.Vehicle(nil), initial...),
		src:       src,
		now:       time.Now,
		logger:    slog.Default(),
		listeners: make(map[int]Listener),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Snapshot() []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Vehicle(nil), s.vehicles...)
}

func (s *Store) Get(id string) (models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.vehicles {
		if v.ID == id {
			return v, nil
		}
	}
	return models.Vehicle{}, fmt.Errorf("%s: %w", id, ErrVehicleNotFound)
}

func (s *Store) Filter(routeID string) []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByRoute(s.vehicles, routeID)
}

func (s *Store) Counts() StatusCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CountStatuses(s.vehicles)
}

// Tick applies one simulated update to the whole fleet.
func (s *Store) Tick() []models.Vehicle {
	next, _ := s.update(func(prev []models.Vehicle) ([]models.Vehicle, error) {
		return Tick(prev, s.src, s.now()), nil
	})
	return next
}

// ApplyFix moves a vehicle to a real position fix and refreshes its
// timestamp.
func (s *Store) ApplyFix(id string, fix models.PositionFix) error {
	_, err := s.update(func(prev []models.Vehicle) ([]models.Vehicle, error) {
		return s.modify(prev, id, func(v *models.Vehicle) {
			v.Latitude = fix.Latitude
			v.Longitude = fix.Longitude
			v.LastUpdate = fix.Timestamp
			if v.LastUpdate.IsZero() {
				v.LastUpdate = s.now()
			}
		})
	})
	return err
}

func (s *Store) SetStatus(id string, status models.VehicleStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown vehicle status %q", status)
	}
	_, err := s.update(func(prev []models.Vehicle) ([]models.Vehicle, error) {
		return s.modify(prev, id, func(v *models.Vehicle) {
			v.Status = status
			v.LastUpdate = s.now()
		})
	})
	return err
}

func (s *Store) modify(prev []models.Vehicle, id string, fn func(*models.Vehicle)) ([]models.Vehicle, error) {
	for i := range prev {
		if prev[i].ID == id {
			next := append([]models.Vehicle(nil), prev...)
			fn(&next[i])
			return next, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrVehicleNotFound)
}

// update swaps in the list produced by fn and notifies listeners. If fn
// fails the store is left as it was.
func (s *Store) update(fn func(prev []models.Vehicle) ([]models.Vehicle, error)) ([]models.Vehicle, error) {
	s.mu.Lock()
	next, err := fn(s.vehicles)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.vehicles = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.notify.Lock()
	s.mu.Unlock()

	for _, l := range listeners {
		l(append([]models.Vehicle(nil), next...))
	}
	s.notify.Unlock()
	return append([]models.Vehicle(nil), next...), nil
}

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Run ticks the store every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	s.logger.Info("position simulation started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("position simulation stopped")
			return nil
		case <-t.C:
			vehicles := s.Tick()
			s.logger.Debug("simulated tick", slog.Int("vehicles", len(vehicles)))
		}
	}
}

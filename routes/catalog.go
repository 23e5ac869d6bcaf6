// Package routes holds the route catalog and the route filter panel used by
// the map views.
package routes

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fleet-tracking-system/models"
)

var ErrUnknownRoute = errors.New("unknown route")

// Catalog is an immutable, ordered set of routes.
type Catalog struct {
	routes []models.Route
	byID   map[string]int
}

func NewCatalog(routes []models.Route) *Catalog {
	c := &Catalog{
		routes: make([]models.Route, len(routes)),
		byID:   make(map[string]int, len(routes)),
	}
	for i, r := range routes {
		r.Stops = append([]models.Stop(nil), r.Stops...)
		c.routes[i] = r
		c.byID[r.ID] = i
	}
	return c
}

func (c *Catalog) All() []models.Route {
	return append([]models.Route(nil), c.routes...)
}

func (c *Catalog) Get(id string) (models.Route, error) {
	i, ok := c.byID[id]
	if !ok {
		return models.Route{}, fmt.Errorf("%s: %w", id, ErrUnknownRoute)
	}
	return c.routes[i], nil
}

// Search returns the routes whose name contains query, ignoring case, in
// catalog order. The query is used as typed, surrounding spaces included. An
// empty query matches every route.
func (c *Catalog) Search(query string) []models.Route {
	q := strings.ToLower(query)
	out := make([]models.Route, 0, len(c.routes))
	for _, r := range c.routes {
		if strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out
}

// ArrivalEstimator predicts how long until the next vehicle reaches a
// route's first stop.
type ArrivalEstimator interface {
	NextArrival(route models.Route, vehicles []models.Vehicle) (time.Duration, bool)
}

type Summary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	ActiveVehicles int    `json:"active_vehicles"`
	Frequency      string `json:"frequency"`
	NextArrival    string `json:"next_arrival,omitempty"`
}

// Summaries describes routes for the route list: active vehicle count,
// service frequency and, when est is non-nil, the next arrival.
func Summaries(routes []models.Route, vehicles []models.Vehicle, est ArrivalEstimator) []Summary {
	out := make([]Summary, 0, len(routes))
	for _, r := range routes {
		s := Summary{ID: r.ID, Name: r.Name, Color: r.Color, Frequency: r.Frequency}
		var serving []models.Vehicle
		for _, v := range vehicles {
			if v.RouteID == r.ID && v.Status == models.StatusActive {
				s.ActiveVehicles++
				serving = append(serving, v)
			}
		}
		if est != nil && len(serving) > 0 {
			if eta, ok := est.NextArrival(r, serving); ok {
				s.NextArrival = FormatETA(eta)
			}
		}
		out = append(out, s)
	}
	return out
}

// FormatETA renders an arrival estimate the way the route list shows it.
func FormatETA(d time.Duration) string {
	if d < time.Minute {
		return "Due"
	}
	return fmt.Sprintf("%d min", int(math.Ceil(d.Minutes())))
}

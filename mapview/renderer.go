// Package mapview turns vehicles and routes into the map primitives the
// browser draws: vehicle markers, a route polyline and stop markers.
package mapview

import (
	"errors"
	"fmt"
	"sync"

	"fleet-tracking-system/geohash"
	"fleet-tracking-system/models"
)

var ErrEngineUnavailable = errors.New("map engine unavailable")

const (
	PlaceholderMessage = "Loading map..."
	pathWeight         = 4
	pathOpacity        = 0.7
	fitPadding         = 20 // px
)

type LatLng [2]float64

type Popup struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

type Marker struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // "vehicle" or "stop"
	Position LatLng `json:"position"`
	Icon     Icon   `json:"icon"`
	Cell     string `json:"cell"`
	Popup    Popup  `json:"popup"`
}

type Polyline struct {
	Points  []LatLng `json:"points"`
	Color   string   `json:"color"`
	Weight  int      `json:"weight"`
	Opacity float64  `json:"opacity"`
}

type FitBounds struct {
	Bounds  geohash.Bounds `json:"bounds"`
	Padding int            `json:"padding"`
}

// Frame is one complete drawing of the map.
type Frame struct {
	Generation  uint64     `json:"generation"`
	Loading     bool       `json:"loading"`
	Placeholder string     `json:"placeholder,omitempty"`
	TileURL     string     `json:"tile_url,omitempty"`
	Attribution string     `json:"attribution,omitempty"`
	Center      LatLng     `json:"center"`
	Zoom        int        `json:"zoom"`
	Vehicles    []Marker   `json:"vehicles"`
	RouteID     string     `json:"route_id,omitempty"`
	Path        *Polyline  `json:"path,omitempty"`
	Stops       []Marker   `json:"stops,omitempty"`
	Fit         *FitBounds `json:"fit,omitempty"`
}

// Engine is the mapping engine the frames are drawn with.
type Engine interface {
	Ready() error
	TileURL() string
	Attribution() string
}

// TileEngine is an Engine backed by a slippy-map tile URL template. It is
// unavailable when no template is configured.
type TileEngine struct {
	URLTemplate string
	Credit      string
}

func (e TileEngine) Ready() error {
	if e.URLTemplate == "" {
		return fmt.Errorf("%w: no tile url template", ErrEngineUnavailable)
	}
	return nil
}

func (e TileEngine) TileURL() string     { return e.URLTemplate }
func (e TileEngine) Attribution() string { return e.Credit }

// LayerGroup is a clearable collection of primitives.
type LayerGroup struct {
	markers []Marker
	lines   []Polyline
}

func (g *LayerGroup) Clear() {
	g.markers = nil
	g.lines = nil
}

func (g *LayerGroup) AddMarker(m Marker)     { g.markers = append(g.markers, m) }
func (g *LayerGroup) AddPolyline(p Polyline) { g.lines = append(g.lines, p) }

// Renderer owns a vehicle layer and a route layer. Each Render clears both
// and draws them again from scratch.
type Renderer struct {
	engine Engine
	center LatLng
	zoom   int

	mu         sync.Mutex
	vehicles   LayerGroup
	route      LayerGroup
	generation uint64
}

func NewRenderer(engine Engine, center LatLng, zoom int) *Renderer {
	return &Renderer{engine: engine, center: center, zoom: zoom}
}

// Render draws vehicles and, when route is non-nil, the route's path and
// stops. If the engine is not ready a placeholder frame is returned.
func (r *Renderer) Render(vehicles []models.Vehicle, route *models.Route) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	frame := Frame{Generation: r.generation, Center: r.center, Zoom: r.zoom}
	if err := r.engine.Ready(); err != nil {
		r.vehicles.Clear()
		r.route.Clear()
		frame.Loading = true
		frame.Placeholder = PlaceholderMessage
		return frame
	}
	frame.TileURL = r.engine.TileURL()
	frame.Attribution = r.engine.Attribution()

	r.vehicles.Clear()
	for _, v := range vehicles {
		r.vehicles.AddMarker(vehicleMarker(v))
	}

	r.route.Clear()
	if route != nil {
		frame.RouteID = route.ID
		if len(route.Stops) > 1 {
			path := Polyline{Color: route.Color, Weight: pathWeight, Opacity: pathOpacity}
			for _, s := range route.Stops {
				path.Points = append(path.Points, LatLng{s.Latitude, s.Longitude})
			}
			r.route.AddPolyline(path)
		}
		for i, s := range route.Stops {
			r.route.AddMarker(stopMarker(route, i, s))
		}
	}

	frame.Vehicles = append([]Marker{}, r.vehicles.markers...)
	if len(r.route.lines) > 0 {
		path := r.route.lines[0]
		frame.Path = &path
		frame.Fit = &FitBounds{Bounds: boundsOf(path.Points), Padding: fitPadding}
	}
	if len(r.route.markers) > 0 {
		frame.Stops = append([]Marker{}, r.route.markers...)
	}
	return frame
}

func vehicleMarker(v models.Vehicle) Marker {
	return Marker{
		ID:       v.ID,
		Kind:     "vehicle",
		Position: LatLng{v.Latitude, v.Longitude},
		Icon:     IconFor(v.Status),
		Cell:     geohash.Cell(v.Latitude, v.Longitude),
		Popup: Popup{
			Title: v.Registration,
			Lines: []string{
				"Route: " + v.RouteID,
				"Status: " + string(v.Status),
				"Last update: " + v.LastUpdate.Format("15:04:05"),
			},
		},
	}
}

func stopMarker(route *models.Route, i int, s models.Stop) Marker {
	return Marker{
		ID:       fmt.Sprintf("%s/stop-%d", route.ID, i),
		Kind:     "stop",
		Position: LatLng{s.Latitude, s.Longitude},
		Icon:     stopIcon,
		Cell:     geohash.Cell(s.Latitude, s.Longitude),
		Popup:    Popup{Title: s.Name, Lines: []string{"Route: " + route.Name}},
	}
}

func boundsOf(points []LatLng) geohash.Bounds {
	b := geohash.Bounds{MinLat: points[0][0], MinLon: points[0][1], MaxLat: points[0][0], MaxLon: points[0][1]}
	for _, p := range points[1:] {
		b = b.Extend(p[0], p[1])
	}
	return b
}

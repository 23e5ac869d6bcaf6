// Package api serves the fleet tracker over HTTP and websocket.
package api

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fleet-tracking-system/auth"
	"fleet-tracking-system/config"
	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/fleet"
	"fleet-tracking-system/geohash"
	"fleet-tracking-system/mapview"
	"fleet-tracking-system/matching"
	"fleet-tracking-system/models"
	"fleet-tracking-system/routes"
	"fleet-tracking-system/trip"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	Fixture    *fixtures.Fixture
	Store      *fleet.Store
	Publisher  trip.Publisher
	Positions  NearbyFinder // optional
	DriverAuth auth.Authenticator
	AdminAuth  auth.Authenticator
	Now        func() time.Time
}

// NearbyFinder returns the ids of vehicles in the geohash cell around a
// point and its neighbours. cache.PositionCache satisfies it.
type NearbyFinder interface {
	Nearby(ctx context.Context, lat, lon float64) ([]string, error)
}

type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	fixture   *fixtures.Fixture
	store     *fleet.Store
	catalog   *routes.Catalog
	technique geohash.GeoIndexingTechnique
	estimator *matching.Estimator
	engine    mapview.Engine
	publisher trip.Publisher
	positions NearbyFinder
	sessions  *auth.Sessions
	login     map[models.Role]auth.Authenticator
	now       func() time.Time
	hub       *Hub

	mu      sync.Mutex
	gates   map[string]*auth.Gate
	drivers map[string]*driverTrip // by session token
}

// driverTrip is the trip state owned by one driver session.
type driverTrip struct {
	geo      *trip.DeviceGeolocator
	recorder *trip.Recorder
}

func NewServer(d Deps) (*Server, error) {
	technique := geohash.GeoIndexingTechnique(d.Config.Map.GeoIndex)
	matcher, err := matching.NewMatcher(technique)
	if err != nil {
		return nil, err
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DriverAuth == nil {
		d.DriverAuth = &auth.MockAuthenticator{Role: models.RoleDriver, Delay: d.Config.Auth.Delay, Fixture: d.Fixture, Now: d.Now}
	}
	if d.AdminAuth == nil {
		d.AdminAuth = &auth.MockAuthenticator{Role: models.RoleAdmin, Delay: d.Config.Auth.Delay, Fixture: d.Fixture, Now: d.Now}
	}

	s := &Server{
		cfg:       d.Config,
		logger:    d.Logger,
		fixture:   d.Fixture,
		store:     d.Store,
		catalog:   routes.NewCatalog(d.Fixture.Routes),
		technique: technique,
		estimator: &matching.Estimator{Matcher: matcher, SpeedKmh: d.Config.Map.AverageSpeedKmh},
		engine:    mapview.TileEngine{URLTemplate: d.Config.Map.TileURL, Credit: d.Config.Map.Attribution},
		publisher: d.Publisher,
		positions: d.Positions,
		sessions:  auth.NewSessions(),
		login: map[models.Role]auth.Authenticator{
			models.RoleDriver: d.DriverAuth,
			models.RoleAdmin:  d.AdminAuth,
		},
		now:     d.Now,
		gates:   make(map[string]*auth.Gate),
		drivers: make(map[string]*driverTrip),
	}
	s.hub = NewHub(s, d.Logger)
	return s, nil
}

func (s *Server) Hub() *Hub { return s.hub }

// gate returns the login gate for role and email, creating it if needed.
// Gates only live while a login is in flight.
func (s *Server) gate(role models.Role, email string) (*auth.Gate, string) {
	key := gateKey(role, email)
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[key]
	if !ok {
		g = auth.NewGate(s.login[role])
		s.gates[key] = g
	}
	return g, key
}

// gateStatus reports the in-flight login for role and email, or idle when
// there is none.
func (s *Server) gateStatus(role models.Role, email string) auth.GateStatus {
	s.mu.Lock()
	g, ok := s.gates[gateKey(role, email)]
	s.mu.Unlock()
	if !ok {
		return auth.GateStatus{State: auth.GateIdle.String()}
	}
	return g.Status()
}

func gateKey(role models.Role, email string) string {
	return string(role) + ":" + strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) releaseGate(key string, g *auth.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates[key] == g && !g.Loading() {
		delete(s.gates, key)
	}
}

func (s *Server) startDriverTrip(ctx context.Context, token string, session *models.Session) {
	geo := trip.NewDeviceGeolocator()
	opts := []trip.Option{
		trip.WithLogger(s.logger),
		trip.WithClock(s.now),
		trip.WithHistoryLimit(s.cfg.Trip.HistoryLimit),
		trip.WithPositionOptions(
			trip.PositionOptions{HighAccuracy: true, Timeout: s.cfg.Trip.PermissionTimeout},
			trip.PositionOptions{HighAccuracy: true, Timeout: s.cfg.Trip.WatchTimeout, MaximumAge: s.cfg.Trip.WatchMaximumAge},
		),
	}
	if s.publisher != nil {
		opts = append(opts, trip.WithPublisher(s.publisher))
	}
	rec := trip.NewRecorder(session.VehicleID, geo, s.store, opts...)
	if _, err := rec.CheckPermission(ctx); err != nil {
		s.logger.Warn("permission check failed", slog.String("vehicle_id", session.VehicleID), slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.drivers[token] = &driverTrip{geo: geo, recorder: rec}
	s.mu.Unlock()
}

func (s *Server) driverTrip(token string) (*driverTrip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt, ok := s.drivers[token]
	return dt, ok
}

// endDriverTrip stops any running trip for the session and forgets it.
func (s *Server) endDriverTrip(token string) {
	s.mu.Lock()
	dt, ok := s.drivers[token]
	delete(s.drivers, token)
	s.mu.Unlock()
	if ok {
		dt.recorder.Stop()
	}
}

// Close stops every running trip.
func (s *Server) Close() {
	s.mu.Lock()
	tokens := make([]string, 0, len(s.drivers))
	for t := range s.drivers {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()
	for _, t := range tokens {
		s.endDriverTrip(t)
	}
	s.hub.Close()
}

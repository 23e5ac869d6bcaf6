package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"fleet-tracking-system/auth"
	"fleet-tracking-system/feed"
	"fleet-tracking-system/fleet"
	"fleet-tracking-system/geohash"
	"fleet-tracking-system/mapview"
	"fleet-tracking-system/models"
	"fleet-tracking-system/routes"
	"fleet-tracking-system/trip"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"vehicles": len(s.store.Snapshot()),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Session *models.Session `json:"session"`
}

// Login handles the driver and admin login forms.
func (s *Server) Login(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}

		g, key := s.gate(role, req.Email)
		session, err := g.Submit(r.Context(), req.Email, req.Password)
		s.releaseGate(key, g)
		switch {
		case errors.Is(err, auth.ErrLoginPending):
			writeError(w, http.StatusConflict, "Login already in progress")
			return
		case err != nil:
			s.logger.Info("login rejected", slog.String("role", string(role)), slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		token := s.sessions.Create(session)
		if role == models.RoleDriver {
			s.startDriverTrip(r.Context(), token, session)
		}
		s.logger.Info("login", slog.String("role", string(role)), slog.String("session_id", session.ID))
		writeJSON(w, http.StatusOK, loginResponse{Token: token, Session: session})
	}
}

// LoginStatus reports whether a login for the email is in flight, so a form
// can keep its inputs disabled.
func (s *Server) LoginStatus(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.gateStatus(role, r.URL.Query().Get("email")))
	}
}

// Logout ends the session, stopping a running trip first.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	s.endDriverTrip(token)
	if _, err := s.sessions.Delete(token); err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session": sessionFrom(r.Context())})
}

// parseBBox reads "minLat,minLon,maxLat,maxLon".
func parseBBox(raw string) (geohash.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geohash.Bounds{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geohash.Bounds{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := geohash.Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return geohash.Bounds{}, errors.New("bbox minimum exceeds maximum")
	}
	return b, nil
}

// parsePoint reads "lat,lon".
func parsePoint(raw string) (float64, float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("near needs 2 values, got %d", len(parts))
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("near latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("near longitude %q: %w", parts[1], err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, errors.New("near point out of range")
	}
	return lat, lon, nil
}

// near keeps the vehicles in the geohash cell around the point and its
// neighbours, in their original order. The Redis position cache answers when
// configured; otherwise the cells are computed from vehicles.
func (s *Server) near(ctx context.Context, vehicles []models.Vehicle, lat, lon float64) []models.Vehicle {
	keep := make(map[string]bool)
	var ids []string
	var err error
	if s.positions != nil {
		if ids, err = s.positions.Nearby(ctx, lat, lon); err != nil {
			s.logger.Warn("nearby lookup failed, using local cells", slog.String("error", err.Error()))
		}
	}
	if s.positions != nil && err == nil {
		for _, id := range ids {
			keep[id] = true
		}
	} else {
		cells := make(map[string]bool)
		for _, c := range geohash.CellAndNeighbors(lat, lon) {
			cells[c] = true
		}
		for _, v := range vehicles {
			if cells[geohash.Cell(v.Latitude, v.Longitude)] {
				keep[v.ID] = true
			}
		}
	}

	out := make([]models.Vehicle, 0, len(keep))
	for _, v := range vehicles {
		if keep[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

// within keeps the vehicles inside b, in their original order.
func (s *Server) within(vehicles []models.Vehicle, b geohash.Bounds) ([]models.Vehicle, error) {
	idx, err := geohash.NewIndex(s.technique)
	if err != nil {
		return nil, err
	}
	idx.Rebuild(vehicles)
	inside := make(map[string]bool)
	for _, id := range idx.Within(b) {
		inside[id] = true
	}
	out := make([]models.Vehicle, 0, len(inside))
	for _, v := range vehicles {
		if inside[v.ID] {
			out = append(out, v)
		}
	}
	return out, nil
}

// ListVehicles returns the fleet, optionally narrowed to a route, a bounding
// box and the cells around a point.
func (s *Server) ListVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	routeID := q.Get("route_id")
	if routeID != "" {
		if _, err := s.catalog.Get(routeID); err != nil {
			writeError(w, http.StatusNotFound, "Route not found")
			return
		}
	}

	vehicles := s.store.Filter(routeID)
	if raw := q.Get("bbox"); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if vehicles, err = s.within(vehicles, b); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if raw := q.Get("near"); raw != "" {
		lat, lon, err := parsePoint(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		vehicles = s.near(r.Context(), vehicles, lat, lon)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles": vehicles,
		"counts":   fleet.CountStatuses(vehicles),
	})
}

type vehicleDetail struct {
	models.Vehicle
	RouteName string `json:"route_name,omitempty"`
	Cell      string `json:"cell"`
}

func (s *Server) detail(v models.Vehicle) vehicleDetail {
	d := vehicleDetail{Vehicle: v, Cell: geohash.Cell(v.Latitude, v.Longitude)}
	if r, err := s.catalog.Get(v.RouteID); err == nil {
		d.RouteName = r.Name
	}
	return d
}

func (s *Server) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.Get(mux.Vars(r)["vehicle_id"])
	if err != nil {
		if errors.Is(err, fleet.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "Vehicle not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.detail(v))
}

// ListRoutes returns route summaries matching the q search.
func (s *Server) ListRoutes(w http.ResponseWriter, r *http.Request) {
	matched := s.catalog.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes.Summaries(matched, s.store.Snapshot(), s.estimator),
	})
}

func (s *Server) GetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.catalog.Get(mux.Vars(r)["route_id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Route not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"route":    route,
		"summary":  routes.Summaries([]models.Route{route}, s.store.Snapshot(), s.estimator)[0],
		"vehicles": s.store.Filter(route.ID),
	})
}

// zoomFor returns the map zoom for a view: the admin overview sits one level
// out from the passenger map, the driver view two levels in.
func (s *Server) zoomFor(view string) int {
	z := s.cfg.Map.Zoom
	switch view {
	case "admin":
		z--
	case "driver":
		z += 2
	}
	return min(max(z, 1), 19)
}

func (s *Server) center() mapview.LatLng {
	return mapview.LatLng{s.cfg.Map.CenterLatitude, s.cfg.Map.CenterLongitude}
}

// GetMap renders a frame of the fleet. With route_id only that route's
// vehicles are drawn, along with its path and stops.
func (s *Server) GetMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var route *models.Route
	if id := q.Get("route_id"); id != "" {
		rt, err := s.catalog.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "Route not found")
			return
		}
		route = &rt
	}

	vehicles := s.store.Snapshot()
	if route != nil {
		vehicles = fleet.FilterByRoute(vehicles, route.ID)
	}
	renderer := mapview.NewRenderer(s.engine, s.center(), s.zoomFor(q.Get("view")))
	writeJSON(w, http.StatusOK, renderer.Render(vehicles, route))
}

type dashboardVehicle struct {
	vehicleDetail
	Stale string `json:"last_update_ago"`
}

// Dashboard is the admin overview: status counts, every vehicle with its
// route name, and the route summaries.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	vehicles := s.store.Snapshot()
	now := s.now()
	list := make([]dashboardVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		list = append(list, dashboardVehicle{
			vehicleDetail: s.detail(v),
			Stale:         trip.FormatElapsed(now.Sub(v.LastUpdate)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts":   fleet.CountStatuses(vehicles),
		"vehicles": list,
		"routes":   routes.Summaries(s.catalog.All(), vehicles, s.estimator),
	})
}

// GTFSRealtime serves the fleet as a GTFS-RT VehiclePositions feed, or as
// protojson with format=json.
func (s *Server) GTFSRealtime(w http.ResponseWriter, r *http.Request) {
	vehicles := s.store.Snapshot()
	if r.URL.Query().Get("format") == "json" {
		data, err := feed.MarshalJSON(vehicles, s.now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}
	data, err := feed.Marshal(vehicles, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Write(data)
}

func (s *Server) tripFor(w http.ResponseWriter, r *http.Request) (*driverTrip, bool) {
	dt, ok := s.driverTrip(bearerToken(r))
	if !ok {
		writeError(w, http.StatusNotFound, "No trip for this session")
	}
	return dt, ok
}

func (s *Server) TripStatus(w http.ResponseWriter, r *http.Request) {
	if dt, ok := s.tripFor(w, r); ok {
		writeJSON(w, http.StatusOK, dt.recorder.Status())
	}
}

// StartTrip starts sharing location. If permission has not been granted the
// request waits for the device to push its first fix.
func (s *Server) StartTrip(w http.ResponseWriter, r *http.Request) {
	dt, ok := s.tripFor(w, r)
	if !ok {
		return
	}
	err := dt.recorder.Start(r.Context())
	switch {
	case errors.Is(err, trip.ErrTripActive), errors.Is(err, trip.ErrStartPending):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		st := dt.recorder.Status()
		writeJSON(w, http.StatusConflict, map[string]any{"error": st.Error, "trip": st})
	default:
		writeJSON(w, http.StatusOK, dt.recorder.Status())
	}
}

func (s *Server) StopTrip(w http.ResponseWriter, r *http.Request) {
	if dt, ok := s.tripFor(w, r); ok {
		dt.recorder.Stop()
		writeJSON(w, http.StatusOK, dt.recorder.Status())
	}
}

func (s *Server) TripHistory(w http.ResponseWriter, r *http.Request) {
	if dt, ok := s.tripFor(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"history": dt.recorder.History()})
	}
}

// TripMap renders the driver's own vehicle, centred on the latest fix.
func (s *Server) TripMap(w http.ResponseWriter, r *http.Request) {
	dt, ok := s.tripFor(w, r)
	if !ok {
		return
	}
	sess := sessionFrom(r.Context())
	v, err := s.store.Get(sess.VehicleID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	center := s.center()
	if cur := dt.recorder.Status().Current; cur != nil {
		center = mapview.LatLng{cur.Latitude, cur.Longitude}
	}
	renderer := mapview.NewRenderer(s.engine, center, s.zoomFor("driver"))
	writeJSON(w, http.StatusOK, renderer.Render([]models.Vehicle{v}, nil))
}

// SetPermission records the browser's geolocation permission state.
func (s *Server) SetPermission(w http.ResponseWriter, r *http.Request) {
	dt, ok := s.tripFor(w, r)
	if !ok {
		return
	}
	var req struct {
		State trip.PermissionState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.State.Valid() {
		writeError(w, http.StatusBadRequest, "state must be one of prompt, granted, denied")
		return
	}
	dt.geo.SetPermission(req.State)
	if _, err := dt.recorder.CheckPermission(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dt.recorder.Status())
}

type positionRequest struct {
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
	Accuracy  float64        `json:"accuracy"`
	ErrorCode trip.ErrorCode `json:"error_code"`
}

// PushPosition accepts one reading from the driver's device: either a fix
// or a geolocation error code.
func (s *Server) PushPosition(w http.ResponseWriter, r *http.Request) {
	dt, ok := s.tripFor(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	switch {
	case req.ErrorCode != 0:
		if !req.ErrorCode.Valid() {
			writeError(w, http.StatusBadRequest, "unknown error_code")
			return
		}
		dt.geo.PushError(req.ErrorCode)
	case req.Latitude != nil && req.Longitude != nil:
		lat, lon := *req.Latitude, *req.Longitude
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			writeError(w, http.StatusBadRequest, "coordinates out of range")
			return
		}
		dt.geo.PushFix(models.PositionFix{Latitude: lat, Longitude: lon, Accuracy: req.Accuracy, Timestamp: s.now()})
	default:
		writeError(w, http.StatusBadRequest, "latitude and longitude or error_code required")
		return
	}
	writeJSON(w, http.StatusAccepted, dt.recorder.Status())
}

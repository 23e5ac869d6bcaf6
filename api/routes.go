package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"fleet-tracking-system/models"
)

// Router registers every endpoint on a fresh mux.Router.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Session endpoints
	api.HandleFunc("/login/driver", s.Login(models.RoleDriver)).Methods("POST")
	api.HandleFunc("/login/admin", s.Login(models.RoleAdmin)).Methods("POST")
	api.HandleFunc("/login/driver/status", s.LoginStatus(models.RoleDriver)).Methods("GET")
	api.HandleFunc("/login/admin/status", s.LoginStatus(models.RoleAdmin)).Methods("GET")
	api.Handle("/logout", s.requireSession(http.HandlerFunc(s.Logout))).Methods("POST")
	api.Handle("/session", s.requireSession(http.HandlerFunc(s.GetSession))).Methods("GET")

	// Fleet endpoints
	api.HandleFunc("/vehicles", s.ListVehicles).Methods("GET")
	api.HandleFunc("/vehicles/{vehicle_id}", s.GetVehicle).Methods("GET")
	api.HandleFunc("/routes", s.ListRoutes).Methods("GET")
	api.HandleFunc("/routes/{route_id}", s.GetRoute).Methods("GET")
	api.HandleFunc("/map", s.GetMap).Methods("GET")
	api.HandleFunc("/feeds/gtfsrt", s.GTFSRealtime).Methods("GET")
	api.Handle("/dashboard", s.requireSession(http.HandlerFunc(s.Dashboard), models.RoleAdmin)).Methods("GET")

	// Driver trip endpoints
	driverOnly := func(h http.HandlerFunc) http.Handler { return s.requireSession(h, models.RoleDriver) }
	api.Handle("/trip", driverOnly(s.TripStatus)).Methods("GET")
	api.Handle("/trip/start", driverOnly(s.StartTrip)).Methods("POST")
	api.Handle("/trip/stop", driverOnly(s.StopTrip)).Methods("POST")
	api.Handle("/trip/history", driverOnly(s.TripHistory)).Methods("GET")
	api.Handle("/trip/map", driverOnly(s.TripMap)).Methods("GET")
	api.Handle("/trip/permission", driverOnly(s.SetPermission)).Methods("PUT")
	api.Handle("/trip/position", driverOnly(s.PushPosition)).Methods("POST")

	router.HandleFunc("/ws/map", s.hub.ServeWS).Methods("GET")

	return router
}

// Handler wraps the router with CORS, panic recovery and, when accessLog is
// non-nil, an Apache combined access log.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)

	h := recovery(cors(s.Router()))
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return h
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionKey{}).(*models.Session)
	return sess
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireSession rejects requests without a valid bearer token, or whose
// session role is not one of roles when roles are given.
func (s *Server) requireSession(next http.Handler, roles ...models.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Lookup(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if len(roles) > 0 {
			allowed := false
			for _, role := range roles {
				if sess.Role == role {
					allowed = true
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "Access denied")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

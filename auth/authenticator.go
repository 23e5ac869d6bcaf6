// Package auth implements the login gate in front of the driver and admin
// dashboards, a mock credential check, and the in-memory session registry.
package auth

import (
	"context"
	"strings"
	"time"

	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/models"
)

// UserError is an error whose text is safe to show to the person logging in.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

var (
	ErrAdminRequired       = &UserError{Message: "Admin access required"}
	ErrCredentialsRequired = &UserError{Message: "Email and password are required"}
)

// Authenticator checks credentials and returns the session they open. The
// session's Token is filled in by the session registry.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.Session, error)
}

// MockAuthenticator stands in for the real identity service. It waits Delay
// to simulate a network round trip and then answers from fixture data.
type MockAuthenticator struct {
	Role    models.Role
	Delay   time.Duration
	Fixture *fixtures.Fixture
	Now     func() time.Time
}

func (a *MockAuthenticator) Authenticate(ctx context.Context, email, password string) (*models.Session, error) {
	if a.Delay > 0 {
		t := time.NewTimer(a.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	switch a.Role {
	case models.RoleAdmin:
		if !strings.Contains(email, "admin") {
			return nil, ErrAdminRequired
		}
		return &models.Session{
			ID:        a.Fixture.Admin.ID,
			Role:      models.RoleAdmin,
			Name:      a.Fixture.Admin.Name,
			Email:     email,
			CreatedAt: now(),
		}, nil
	default:
		d := a.Fixture.Driver
		s := &models.Session{
			ID:        d.ID,
			Role:      models.RoleDriver,
			Name:      d.Name,
			Email:     email,
			CreatedAt: now(),
			VehicleID: d.VehicleID,
			RouteID:   d.RouteID,
		}
		if v, ok := a.Fixture.Vehicle(d.VehicleID); ok {
			s.VehicleRegistration = v.Registration
		}
		if r, ok := a.Fixture.Route(d.RouteID); ok {
			s.RouteName = r.Name
		}
		return s, nil
	}
}

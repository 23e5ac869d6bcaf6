package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/models"
)

func newAuthenticator(role models.Role) *MockAuthenticator {
	return &MockAuthenticator{Role: role, Fixture: fixtures.Default(time.Now())}
}

func TestAdminLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantName string
		wantErr  string
	}{
		{"admin email", "admin@example.com", "admin123", "Sarah Johnson", ""},
		{"admin inside address", "fleet.admin@example.com", "x", "Sarah Johnson", ""},
		{"uppercase admin", "ADMIN@example.com", "x", "", "Admin access required"},
		{"not an admin", "someone@nowhere.com", "whatever", "", "Admin access required"},
		{"empty password", "admin@example.com", "", "", "Email and password are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(newAuthenticator(models.RoleAdmin))
			s, err := g.Submit(context.Background(), tt.email, tt.password)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				st := g.Status()
				if st.State != "failed" || st.Error != tt.wantErr || st.Loading {
					t.Errorf("status = %+v", st)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if s.ID != "admin-1" || s.Name != tt.wantName || s.Role != models.RoleAdmin || s.Email != tt.email {
				t.Errorf("session = %+v", s)
			}
		})
	}
}

func TestDriverLoginCarriesAssignment(t *testing.T) {
	g := NewGate(newAuthenticator(models.RoleDriver))
	s, err := g.Submit(context.Background(), "anyone@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "driver-1" || s.Name != "John Smith" || s.VehicleID != "bus-1" || s.VehicleRegistration != "NYC-1001" ||
		s.RouteID != "route-1" || s.RouteName != "Downtown Express" {
		t.Errorf("session = %+v", s)
	}
}

type blockingAuth struct {
	release chan struct{}
	err     error
}

func (b *blockingAuth) Authenticate(ctx context.Context, email, _ string) (*models.Session, error) {
	<-b.release
	if b.err != nil {
		return nil, b.err
	}
	return &models.Session{Email: email}, nil
}

func TestGatePendingDisablesInputs(t *testing.T) {
	ba := &blockingAuth{release: make(chan struct{}), err: errors.New("upstream exploded")}
	g := NewGate(ba)

	done := make(chan error)
	go func() {
		_, err := g.Submit(context.Background(), "a@b.c", "pw")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !g.Loading() {
		if time.Now().After(deadline) {
			t.Fatal("gate never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if !g.InputsDisabled() {
		t.Error("inputs enabled while pending")
	}
	if _, err := g.Submit(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrLoginPending) {
		t.Errorf("second submit = %v", err)
	}

	close(ba.release)
	err := <-done
	if err == nil || err.Error() != "Login failed" {
		t.Errorf("err = %v, want generic failure", err)
	}
	if g.InputsDisabled() {
		t.Error("inputs still disabled")
	}

	g.Reset()
	if st := g.Status(); st.State != "idle" || st.Error != "" {
		t.Errorf("after reset = %+v", st)
	}
}

func TestGateLogout(t *testing.T) {
	g := NewGate(newAuthenticator(models.RoleDriver))
	if _, err := g.Submit(context.Background(), "d@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if st := g.Status(); st.State != "authenticated" || st.Session == nil {
		t.Fatalf("status = %+v", st)
	}
	g.Logout()
	if st := g.Status(); st.State != "idle" || st.Session != nil {
		t.Errorf("after logout = %+v", st)
	}
}

func TestMockAuthenticatorHonoursContext(t *testing.T) {
	a := newAuthenticator(models.RoleDriver)
	a.Delay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Authenticate(ctx, "d@example.com", "pw"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestSessions(t *testing.T) {
	r := NewSessions()
	s := &models.Session{ID: "s1", Name: "John Smith"}
	token := r.Create(s)
	if token == "" || s.Token != token {
		t.Fatalf("token = %q, session token = %q", token, s.Token)
	}

	got, err := r.Lookup(token)
	if err != nil || got.Name != "John Smith" {
		t.Fatalf("Lookup = %+v, %v", got, err)
	}
	got.Name = "changed"
	if again, _ := r.Lookup(token); again.Name != "John Smith" {
		t.Error("Lookup returned shared session")
	}

	if _, err := r.Delete(token); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup(token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("after delete err = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"fleet-tracking-system/models"
)

var ErrLoginPending = errors.New("login already in progress")

const genericLoginFailure = "Login failed"

type GateState int

const (
	GateIdle GateState = iota
	GatePending
	GateAuthenticated
	GateFailed
)

func (s GateState) String() string {
	switch s {
	case GatePending:
		return "pending"
	case GateAuthenticated:
		return "authenticated"
	case GateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// GateStatus is a snapshot of a Gate.
type GateStatus struct {
	State          string          `json:"state"`
	Loading        bool            `json:"loading"`
	InputsDisabled bool            `json:"inputs_disabled"`
	Error          string          `json:"error,omitempty"`
	Session        *models.Session `json:"session,omitempty"`
}

// Gate runs one login attempt at a time: it allows a single credential check,
// keeps the outcome, and reduces failures to a message fit for display.
type Gate struct {
	auth Authenticator

	mu      sync.Mutex
	state   GateState
	session *models.Session
	message string
}

func NewGate(a Authenticator) *Gate {
	return &Gate{auth: a}
}

// Submit runs the credential check. While it is in flight further Submits
// fail with ErrLoginPending. On failure the returned error's text is the
// message to display.
func (g *Gate) Submit(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.TrimSpace(email)

	g.mu.Lock()
	if g.state == GatePending {
		g.mu.Unlock()
		return nil, ErrLoginPending
	}
	if email == "" || password == "" {
		g.state = GateFailed
		g.message = ErrCredentialsRequired.Message
		g.mu.Unlock()
		return nil, ErrCredentialsRequired
	}
	g.state = GatePending
	g.message = ""
	g.session = nil
	g.mu.Unlock()

	session, err := g.auth.Authenticate(ctx, email, password)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.state = GateFailed
		g.message = failureMessage(err)
		return nil, &UserError{Message: g.message}
	}
	g.state = GateAuthenticated
	g.session = session
	return session, nil
}

func failureMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return genericLoginFailure
}

// Reset clears a previous failure.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateFailed {
		g.state = GateIdle
		g.message = ""
	}
}

// Logout drops the session and returns the gate to idle.
func (g *Gate) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePending {
		g.state = GateIdle
		g.session = nil
		g.message = ""
	}
}

func (g *Gate) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == GatePending
}

// InputsDisabled reports whether further credentials are refused.
func (g *Gate) InputsDisabled() bool { return g.Loading() }

func (g *Gate) Status() GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateStatus{
		State:          g.state.String(),
		Loading:        g.state == GatePending,
		InputsDisabled: g.state == GatePending,
		Error:          g.message,
		Session:        g.session,
	}
}

package auth

import (
	"errors"
	"sync"

	"github.com/lucsky/cuid"

	"fleet-tracking-system/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions is the process-local registry of open sessions, keyed by bearer
// token.
type Sessions struct {
	mu       sync.RWMutex
	byToken  map[string]*models.Session
	newToken func() string
}

func NewSessions() *Sessions {
	return &Sessions{
		byToken:  make(map[string]*models.Session),
		newToken: cuid.New,
	}
}

// Create stores s under a fresh token and returns the token.
func (r *Sessions) Create(s *models.Session) string {
	token := r.newToken()
	stored := *s
	stored.Token = token

	r.mu.Lock()
	r.byToken[token] = &stored
	r.mu.Unlock()
	s.Token = token
	return token
}

func (r *Sessions) Lookup(token string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

// Delete ends the session and returns it.
func (r *Sessions) Delete(token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.byToken, token)
	return s, nil
}

func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

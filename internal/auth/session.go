package auth

import (
	"sync"

	"github.com/openlot/bidsync/internal/core/domain"
	"github.com/openlot/bidsync/internal/core/ports"
)

// StaticSession is a ports.SessionProvider backed by a fixed token and user,
// as configured for the operator tools. SetToken/Clear allow the surrounding
// app to rotate credentials without rebuilding the connection.
type StaticSession struct {
	mu    sync.RWMutex
	token string
	user  domain.UserRef
	auth  bool
}

var _ ports.SessionProvider = (*StaticSession)(nil)

// NewStaticSession builds a session for an authenticated user.
func NewStaticSession(token string, user domain.UserRef) *StaticSession {
	return &StaticSession{token: token, user: user, auth: true}
}

// NewAnonymousSession builds a session with no authenticated user.
func NewAnonymousSession() *StaticSession {
	return &StaticSession{}
}

func (s *StaticSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *StaticSession) User() (domain.UserRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.auth
}

// SetToken swaps in a fresh token and user.
func (s *StaticSession) SetToken(token string, user domain.UserRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.auth = true
}

// Clear drops the credentials, as on sign-out.
func (s *StaticSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = domain.UserRef{}
	s.auth = false
}

// Package session tracks who a single interactive client is acting as.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"vaxsched/internal/domain"
)

var (
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrWrongRole       = errors.New("wrong role")
)

type Session struct {
	ID uuid.UUID

	mu       sync.Mutex
	identity domain.Identity
}

func New() *Session {
	return &Session{ID: uuid.New()}
}

func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) Login(id domain.Identity) error {
	if id.Anonymous() {
		return errors.New("cannot log in as anonymous")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.identity.Anonymous() {
		return ErrAlreadyLoggedIn
	}
	s.identity = id
	return nil
}

func (s *Session) Logout() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.Anonymous() {
		return domain.Identity{}, ErrNotLoggedIn
	}
	prev := s.identity
	s.identity = domain.Identity{}
	return prev, nil
}

// Require returns the current identity if it holds role.
func (s *Session) Require(role domain.Role) (domain.Identity, error) {
	id := s.Identity()
	if id.Anonymous() {
		return domain.Identity{}, ErrNotLoggedIn
	}
	if id.Role != role {
		return domain.Identity{}, ErrWrongRole
	}
	return id, nil
}

// RequireAny returns the current identity if anyone is logged in.
func (s *Session) RequireAny() (domain.Identity, error) {
	id := s.Identity()
	if id.Anonymous() {
		return domain.Identity{}, ErrNotLoggedIn
	}
	return id, nil
}

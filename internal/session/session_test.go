package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"vaxsched/internal/domain"
)

func TestSessionLifecycle(t *testing.T) {
	s := New()
	if s.ID == uuid.Nil {
		t.Fatalf("session id not set")
	}
	if !s.Identity().Anonymous() {
		t.Fatalf("new session should be anonymous")
	}

	if _, err := s.Logout(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("logout err = %v, want %v", err, ErrNotLoggedIn)
	}
	if _, err := s.RequireAny(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("RequireAny err = %v, want %v", err, ErrNotLoggedIn)
	}

	if err := s.Login(domain.PatientIdentity("pat")); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := s.Login(domain.CaregiverIdentity("alice")); !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Fatalf("second login err = %v, want %v", err, ErrAlreadyLoggedIn)
	}

	if id, err := s.Require(domain.RolePatient); err != nil || id.Username != "pat" {
		t.Fatalf("Require(patient) = %v, %v", id, err)
	}
	if _, err := s.Require(domain.RoleCaregiver); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("Require(caregiver) err = %v, want %v", err, ErrWrongRole)
	}

	prev, err := s.Logout()
	if err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if prev != domain.PatientIdentity("pat") {
		t.Fatalf("logged out identity = %v", prev)
	}
	if _, err := s.Require(domain.RolePatient); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Require after logout err = %v, want %v", err, ErrNotLoggedIn)
	}
}

func TestSessionRejectsAnonymousLogin(t *testing.T) {
	s := New()
	if err := s.Login(domain.Identity{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSessionsHaveDistinctIDs(t *testing.T) {
	if New().ID == New().ID {
		t.Fatalf("session ids collide")
	}
}

package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleCaregiver
}

// Identity is who a session is acting as. The zero value is anonymous.
type Identity struct {
	Role     Role
	Username string
}

func PatientIdentity(username string) Identity {
	return Identity{Role: RolePatient, Username: username}
}

func CaregiverIdentity(username string) Identity {
	return Identity{Role: RoleCaregiver, Username: username}
}

func (i Identity) Anonymous() bool {
	return i.Username == "" || !i.Role.Valid()
}

func (i Identity) Is(role Role) bool {
	return !i.Anonymous() && i.Role == role
}

func (i Identity) String() string {
	if i.Anonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%s", i.Role, i.Username)
}

// Credential is the stored login record for one account. Patients and
// caregivers live in separate tables with the same shape.
type Credential struct {
	Username     string
	Salt         []byte
	PasswordHash []byte
	CreatedAt    time.Time
}

type Patient struct {
	bun.BaseModel `bun:"table:patients"`

	Username     string    `bun:"username,pk"`
	Salt         []byte    `bun:"salt,notnull"`
	PasswordHash []byte    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type Caregiver struct {
	bun.BaseModel `bun:"table:caregivers"`

	Username     string    `bun:"username,pk"`
	Salt         []byte    `bun:"salt,notnull"`
	PasswordHash []byte    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func (p *Patient) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && p != nil && p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (c *Caregiver) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && c != nil && c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

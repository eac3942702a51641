package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Appointment is the single source of truth for which caregiver, date and
// vaccine dose a booking consumed.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                int64     `bun:"id,pk"`
	VaccineName       string    `bun:"vaccine_name,notnull"`
	PatientUsername   string    `bun:"patient_username,notnull"`
	CaregiverUsername string    `bun:"caregiver_username,notnull"`
	Date              Date      `bun:"slot_date,type:date,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a != nil && a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Counterpart returns the other party's username from the viewpoint of role.
func (a Appointment) Counterpart(role Role) string {
	if role == RoleCaregiver {
		return a.PatientUsername
	}
	return a.CaregiverUsername
}

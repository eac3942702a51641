package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Vaccine struct {
	bun.BaseModel `bun:"table:vaccines"`

	Name           string    `bun:"name,pk"`
	AvailableDoses int       `bun:"available_doses,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func (v *Vaccine) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if v == nil {
		return nil
	}
	if _, ok := query.(*bun.InsertQuery); ok {
		now := time.Now().UTC()
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now
		}
	}
	return nil
}

// Availability is one bookable (caregiver, date) pair.
type Availability struct {
	bun.BaseModel `bun:"table:availabilities"`

	CaregiverUsername string `bun:"caregiver_username,pk"`
	Date              Date   `bun:"slot_date,pk,type:date"`
}

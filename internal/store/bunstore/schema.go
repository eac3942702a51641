package bunstore

import (
	"context"

	"github.com/uptrace/bun"

	"vaxsched/internal/domain"
)

var tables = []any{
	(*domain.Patient)(nil),
	(*domain.Caregiver)(nil),
	(*domain.Vaccine)(nil),
	(*domain.Availability)(nil),
	(*domain.Appointment)(nil),
}

type index struct {
	model  any
	name   string
	column string
}

var indexes = []index{
	{model: (*domain.Availability)(nil), name: "availabilities_slot_date_idx", column: "slot_date"},
	{model: (*domain.Appointment)(nil), name: "appointments_patient_idx", column: "patient_username"},
	{model: (*domain.Appointment)(nil), name: "appointments_caregiver_idx", column: "caregiver_username"},
}

// Migrate creates the credential and ledger tables when they are missing.
// It is dialect neutral so the same schema serves PostgreSQL and SQLite.
func Migrate(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range tables {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		for _, idx := range indexes {
			_, err := tx.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.column).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

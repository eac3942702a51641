package store

import (
	"context"

	"vaxsched/internal/domain"
)

// Ledger runs units of work against the inventory, availability and
// appointment tables. Every InTx unit is serialized against every other
// InTx unit and commits or rolls back as a whole.
type Ledger interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

type LedgerTx interface {
	GetVaccine(ctx context.Context, name string) (domain.Vaccine, error)
	CreateVaccine(ctx context.Context, name string, doses int) (domain.Vaccine, error)
	IncreaseDoses(ctx context.Context, name string, n int) error
	DecreaseDoses(ctx context.Context, name string, n int) error
	ListVaccines(ctx context.Context) ([]domain.Vaccine, error)

	PublishAvailability(ctx context.Context, caregiver string, date domain.Date) error
	PickAvailableCaregiver(ctx context.Context, date domain.Date) (string, error)
	ConsumeAvailability(ctx context.Context, caregiver string, date domain.Date) error
	RestoreAvailability(ctx context.Context, caregiver string, date domain.Date) (bool, error)
	ListAvailableCaregivers(ctx context.Context, date domain.Date) ([]string, error)

	NextAppointmentID(ctx context.Context) (int64, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
	ListAppointments(ctx context.Context, party domain.Role, username string) ([]domain.Appointment, error)
}

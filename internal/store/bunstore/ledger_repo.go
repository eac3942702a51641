package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

const ledgerLockKey = "vaxsched:ledger"

// LedgerRepo implements store.Ledger on top of bun. On PostgreSQL units are
// serialized with a transaction-scoped advisory lock so several processes can
// share the database. Engines without advisory locks fall back to an
// in-process semaphore.
type LedgerRepo struct {
	db       *bun.DB
	advisory bool
	sem      chan struct{}
}

func NewLedgerRepo(db *bun.DB) *LedgerRepo {
	return &LedgerRepo{
		db:       db,
		advisory: db.Dialect().Name() == dialect.PG,
		sem:      make(chan struct{}, 1),
	}
}

type ledgerTx struct {
	tx bun.Tx
}

var _ store.Ledger = (*LedgerRepo)(nil)
var _ store.LedgerTx = ledgerTx{}

func (r *LedgerRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	if !r.advisory {
		release, err := r.acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if r.advisory {
			if err := lockLedger(ctx, tx); err != nil {
				return err
			}
		}
		return fn(ctx, ledgerTx{tx: tx})
	})
}

func (r *LedgerRepo) View(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, ledgerTx{tx: tx})
	})
}

func (r *LedgerRepo) acquire(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func lockLedger(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", ledgerLockKey).Exec(ctx)
	return err
}

func (r ledgerTx) GetVaccine(ctx context.Context, name string) (domain.Vaccine, error) {
	var v domain.Vaccine
	err := r.tx.NewSelect().
		Model(&v).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vaccine{}, fmt.Errorf("vaccine %q: %w", name, store.ErrNotFound)
		}
		return domain.Vaccine{}, err
	}
	return v, nil
}

func (r ledgerTx) CreateVaccine(ctx context.Context, name string, doses int) (domain.Vaccine, error) {
	if doses < 0 {
		return domain.Vaccine{}, fmt.Errorf("vaccine %q: initial doses must not be negative", name)
	}
	m := domain.Vaccine{Name: name, AvailableDoses: doses}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Vaccine{}, fmt.Errorf("vaccine %q: %w", name, store.ErrConflict)
		}
		return domain.Vaccine{}, err
	}
	return m, nil
}

func (r ledgerTx) IncreaseDoses(ctx context.Context, name string, n int) error {
	if n <= 0 {
		return fmt.Errorf("vaccine %q: dose increase must be positive, got %d", name, n)
	}
	res, err := r.tx.NewUpdate().
		Model((*domain.Vaccine)(nil)).
		Set("available_doses = available_doses + ?", n).
		Set("updated_at = ?", time.Now().UTC()).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Errorf("vaccine %q: %w", name, store.ErrNotFound))
}

// DecreaseDoses subtracts n only when at least n doses remain. The floor is
// part of the UPDATE itself so it holds even without the ledger lock.
func (r ledgerTx) DecreaseDoses(ctx context.Context, name string, n int) error {
	if n <= 0 {
		return fmt.Errorf("vaccine %q: dose decrease must be positive, got %d", name, n)
	}
	res, err := r.tx.NewUpdate().
		Model((*domain.Vaccine)(nil)).
		Set("available_doses = available_doses - ?", n).
		Set("updated_at = ?", time.Now().UTC()).
		Where("name = ?", name).
		Where("available_doses >= ?", n).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := r.GetVaccine(ctx, name); err != nil {
		return err
	}
	return fmt.Errorf("vaccine %q: %w", name, store.ErrInsufficientSupply)
}

func (r ledgerTx) ListVaccines(ctx context.Context) ([]domain.Vaccine, error) {
	rows := make([]domain.Vaccine, 0)
	err := r.tx.NewSelect().
		Model(&rows).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PublishAvailability opens a pair. A pair that is already open, or already
// booked by an appointment, is a conflict.
func (r ledgerTx) PublishAvailability(ctx context.Context, caregiver string, date domain.Date) error {
	booked, err := r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("caregiver_username = ?", caregiver).
		Where("slot_date = ?", date).
		Exists(ctx)
	if err != nil {
		return err
	}
	if booked {
		return fmt.Errorf("availability %s on %s already booked: %w", caregiver, date, store.ErrConflict)
	}

	m := domain.Availability{CaregiverUsername: caregiver, Date: date}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("availability %s on %s: %w", caregiver, date, store.ErrConflict)
		}
		return err
	}
	return nil
}

// PickAvailableCaregiver returns the lexicographically lowest caregiver with
// an open slot on date without consuming it.
func (r ledgerTx) PickAvailableCaregiver(ctx context.Context, date domain.Date) (string, error) {
	var username string
	err := r.tx.NewSelect().
		Model((*domain.Availability)(nil)).
		Column("caregiver_username").
		Where("slot_date = ?", date).
		OrderExpr("caregiver_username ASC").
		Limit(1).
		Scan(ctx, &username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("availability on %s: %w", date, store.ErrNotFound)
		}
		return "", err
	}
	return username, nil
}

func (r ledgerTx) ConsumeAvailability(ctx context.Context, caregiver string, date domain.Date) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Availability)(nil)).
		Where("caregiver_username = ?", caregiver).
		Where("slot_date = ?", date).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Errorf("availability %s on %s: %w", caregiver, date, store.ErrNotFound))
}

// RestoreAvailability re-opens a pair unless it is already open. It reports
// whether a row was inserted.
func (r ledgerTx) RestoreAvailability(ctx context.Context, caregiver string, date domain.Date) (bool, error) {
	m := domain.Availability{CaregiverUsername: caregiver, Date: date}
	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r ledgerTx) ListAvailableCaregivers(ctx context.Context, date domain.Date) ([]string, error) {
	names := make([]string, 0)
	err := r.tx.NewSelect().
		Model((*domain.Availability)(nil)).
		Column("caregiver_username").
		Where("slot_date = ?", date).
		OrderExpr("caregiver_username ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// NextAppointmentID is only safe inside InTx: the ledger lock keeps two
// units from reading the same maximum.
func (r ledgerTx) NextAppointmentID(ctx context.Context) (int64, error) {
	var maxID int64
	err := r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		ColumnExpr("COALESCE(MAX(id), 0)").
		Scan(ctx, &maxID)
	if err != nil {
		return 0, err
	}
	return maxID + 1, nil
}

func (r ledgerTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:                appt.ID,
		VaccineName:       appt.VaccineName,
		PatientUsername:   appt.PatientUsername,
		CaregiverUsername: appt.CaregiverUsername,
		Date:              appt.Date,
		CreatedAt:         appt.CreatedAt,
	}

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Appointment{}, fmt.Errorf("appointment %d: %w", appt.ID, store.ErrConflict)
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r ledgerTx) GetAppointment(ctx context.Context, id int64) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, fmt.Errorf("appointment %d: %w", id, store.ErrNotFound)
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r ledgerTx) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Errorf("appointment %d: %w", id, store.ErrNotFound))
}

func (r ledgerTx) ListAppointments(ctx context.Context, party domain.Role, username string) ([]domain.Appointment, error) {
	var column string
	switch party {
	case domain.RolePatient:
		column = "patient_username"
	case domain.RoleCaregiver:
		column = "caregiver_username"
	default:
		return nil, fmt.Errorf("list appointments: unknown role %q", party)
	}

	rows := make([]domain.Appointment, 0)
	err := r.tx.NewSelect().
		Model(&rows).
		Where("? = ?", bun.Ident(column), username).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

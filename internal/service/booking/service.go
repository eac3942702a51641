// Package booking coordinates the vaccine inventory, caregiver availability
// and appointment ledgers. Every mutating operation runs as one ledger unit,
// so a failure at any step leaves no partial effects behind.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

const tracerName = "vaxsched/internal/service/booking"

type Service struct {
	ledger store.Ledger
	tracer trace.Tracer
}

func NewService(ledger store.Ledger) *Service {
	return &Service{
		ledger: ledger,
		tracer: otel.Tracer(tracerName),
	}
}

// Schedule is what a search returns: the caregivers open on a date and the
// whole vaccine inventory, both ordered by name.
type Schedule struct {
	Date       domain.Date
	Caregivers []string
	Vaccines   []domain.Vaccine
}

func (s *Service) Reserve(ctx context.Context, who domain.Identity, date domain.Date, vaccine string) (appt domain.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.Reserve", who,
		attribute.String("slot_date", date.String()),
		attribute.String("vaccine", vaccine),
	)
	defer func() { endSpan(span, err) }()

	if !who.Is(domain.RolePatient) {
		return domain.Appointment{}, ErrForbidden
	}
	if date.IsZero() {
		return domain.Appointment{}, validationError("date is required")
	}
	vaccine = strings.TrimSpace(vaccine)
	if vaccine == "" {
		return domain.Appointment{}, validationError("vaccine is required")
	}

	err = s.ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		v, err := tx.GetVaccine(ctx, vaccine)
		if err != nil {
			return err
		}
		if v.AvailableDoses <= 0 {
			return fmt.Errorf("vaccine %q: %w", vaccine, store.ErrInsufficientSupply)
		}

		caregiver, err := tx.PickAvailableCaregiver(ctx, date)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoCaregiverAvailable
			}
			return err
		}
		if err := tx.ConsumeAvailability(ctx, caregiver, date); err != nil {
			return err
		}

		id, err := tx.NextAppointmentID(ctx)
		if err != nil {
			return err
		}
		created, err := tx.CreateAppointment(ctx, domain.Appointment{
			ID:                id,
			VaccineName:       v.Name,
			PatientUsername:   who.Username,
			CaregiverUsername: caregiver,
			Date:              date,
		})
		if err != nil {
			return err
		}

		if err := tx.DecreaseDoses(ctx, v.Name, 1); err != nil {
			return err
		}
		appt = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, classify("reserve", err)
	}
	span.SetAttributes(
		attribute.Int64("appointment_id", appt.ID),
		attribute.String("caregiver", appt.CaregiverUsername),
	)
	return appt, nil
}

// Cancel removes an appointment and hands its dose and slot back. Only the
// patient or the caregiver named on the appointment may cancel it.
func (s *Service) Cancel(ctx context.Context, who domain.Identity, id int64) (appt domain.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.Cancel", who, attribute.Int64("appointment_id", id))
	defer func() { endSpan(span, err) }()

	if who.Anonymous() {
		return domain.Appointment{}, ErrForbidden
	}
	if id <= 0 {
		return domain.Appointment{}, validationError("appointment id must be positive")
	}

	err = s.ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		found, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !mayCancel(who, found) {
			return ErrForbidden
		}
		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return err
		}
		if err := tx.IncreaseDoses(ctx, found.VaccineName, 1); err != nil {
			return err
		}
		if _, err := tx.RestoreAvailability(ctx, found.CaregiverUsername, found.Date); err != nil {
			return err
		}
		appt = found
		return nil
	})
	if err != nil {
		return domain.Appointment{}, classify("cancel", err)
	}
	return appt, nil
}

func mayCancel(who domain.Identity, appt domain.Appointment) bool {
	switch who.Role {
	case domain.RolePatient:
		return who.Username == appt.PatientUsername
	case domain.RoleCaregiver:
		return who.Username == appt.CaregiverUsername
	default:
		return false
	}
}

func (s *Service) UploadAvailability(ctx context.Context, who domain.Identity, date domain.Date) (err error) {
	ctx, span := s.start(ctx, "booking.UploadAvailability", who, attribute.String("slot_date", date.String()))
	defer func() { endSpan(span, err) }()

	if !who.Is(domain.RoleCaregiver) {
		return ErrForbidden
	}
	if date.IsZero() {
		return validationError("date is required")
	}

	err = s.ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		return tx.PublishAvailability(ctx, who.Username, date)
	})
	return classify("upload availability", err)
}

// AddDoses creates the vaccine on first use and otherwise tops it up.
func (s *Service) AddDoses(ctx context.Context, who domain.Identity, vaccine string, count int) (v domain.Vaccine, err error) {
	ctx, span := s.start(ctx, "booking.AddDoses", who,
		attribute.String("vaccine", vaccine),
		attribute.Int("count", count),
	)
	defer func() { endSpan(span, err) }()

	if !who.Is(domain.RoleCaregiver) {
		return domain.Vaccine{}, ErrForbidden
	}
	vaccine = strings.TrimSpace(vaccine)
	if vaccine == "" {
		return domain.Vaccine{}, validationError("vaccine is required")
	}
	if count <= 0 {
		return domain.Vaccine{}, validationError("dose count must be positive")
	}

	err = s.ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		_, err := tx.GetVaccine(ctx, vaccine)
		switch {
		case errors.Is(err, store.ErrNotFound):
			created, err := tx.CreateVaccine(ctx, vaccine, count)
			if err != nil {
				return err
			}
			v = created
			return nil
		case err != nil:
			return err
		}

		if err := tx.IncreaseDoses(ctx, vaccine, count); err != nil {
			return err
		}
		v, err = tx.GetVaccine(ctx, vaccine)
		return err
	})
	if err != nil {
		return domain.Vaccine{}, classify("add doses", err)
	}
	return v, nil
}

func (s *Service) SearchSchedule(ctx context.Context, who domain.Identity, date domain.Date) (sched Schedule, err error) {
	ctx, span := s.start(ctx, "booking.SearchSchedule", who, attribute.String("slot_date", date.String()))
	defer func() { endSpan(span, err) }()

	if who.Anonymous() {
		return Schedule{}, ErrForbidden
	}
	if date.IsZero() {
		return Schedule{}, validationError("date is required")
	}

	sched.Date = date
	err = s.ledger.View(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		caregivers, err := tx.ListAvailableCaregivers(ctx, date)
		if err != nil {
			return err
		}
		vaccines, err := tx.ListVaccines(ctx)
		if err != nil {
			return err
		}
		sched.Caregivers = caregivers
		sched.Vaccines = vaccines
		return nil
	})
	if err != nil {
		return Schedule{}, classify("search schedule", err)
	}
	return sched, nil
}

// ListAppointments returns the caller's appointments by ascending id.
func (s *Service) ListAppointments(ctx context.Context, who domain.Identity) (out []domain.Appointment, err error) {
	ctx, span := s.start(ctx, "booking.ListAppointments", who)
	defer func() { endSpan(span, err) }()

	if who.Anonymous() {
		return nil, ErrForbidden
	}

	err = s.ledger.View(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		rows, err := tx.ListAppointments(ctx, who.Role, who.Username)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, classify("list appointments", err)
	}
	return out, nil
}

func (s *Service) start(ctx context.Context, name string, who domain.Identity, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("identity", who.String()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

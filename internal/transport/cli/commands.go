package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"vaxsched/internal/domain"
	"vaxsched/internal/service/accounts"
	"vaxsched/internal/service/booking"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
)

const (
	msgTryAgain          = "Please try again"
	msgTryAgainBang      = "Please try again!"
	msgLoginFirst        = "Please login first"
	msgLoginAsPatient    = "Please login as a patient"
	msgLoginAsCaregiver  = "Please login as a caregiver first!"
	msgCreateUserFailed  = "Failed to create user."
	msgUsernameTaken     = "Username taken, try again"
	msgAlreadyLoggedIn   = "User already logged in, try again"
	msgLoginFailed       = "Login failed."
	msgTooManyAttempts   = "Too many login attempts, try again later"
	msgNotEnoughDoses    = "Not enough available doses"
	msgNoCaregiver       = "No caregiver is available"
	msgInvalidDate       = "Please enter a valid date!"
	msgAlreadyUploaded   = "Availability already uploaded or booked for that date"
	msgNoAppointments    = "No appointments scheduled"
	msgNoCaregivers      = "No caregivers available"
	msgNoVaccines        = "No vaccines available"
	msgReserveFailed     = "Error occurred when reserving appointment"
	msgCancelFailed      = "Error occurred when canceling appointment"
	msgUploadFailed      = "Error occurred when uploading availability"
	msgAddDosesFailed    = "Error occurred when adding doses"
	msgSearchFailed      = "Error occurred when searching for caregiver"
	msgAppointmentsError = "Error occurred when getting appointments"
)

func (h *Handler) createAccount(role domain.Role) func(context.Context, *slog.Logger, *session.Session, []string) []string {
	return func(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
		if len(args) != 2 {
			log.Warn("invalid request", slog.String("reason", "arity"))
			return []string{msgCreateUserFailed}
		}
		username, password := args[0], args[1]

		id, err := h.accounts.Register(ctx, role, username, password)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.Info("account create conflict", slog.String("role", string(role)), slog.String("username", username))
				return []string{msgUsernameTaken}
			}
			var vErr *accounts.ValidationError
			if errors.As(err, &vErr) {
				log.Warn("invalid request", slog.Any("err", err))
				return []string{msgCreateUserFailed}
			}
			log.Error("account create failed", slog.Any("err", err), slog.String("role", string(role)))
			return []string{msgCreateUserFailed}
		}

		log.Info("account created", slog.String("identity", id.String()))
		return []string{"Created user " + id.Username}
	}
}

func (h *Handler) login(role domain.Role) func(context.Context, *slog.Logger, *session.Session, []string) []string {
	return func(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
		if !sess.Identity().Anonymous() {
			return []string{msgAlreadyLoggedIn}
		}
		if len(args) != 2 {
			log.Warn("invalid request", slog.String("reason", "arity"))
			return []string{msgLoginFailed}
		}

		id, err := h.accounts.Authenticate(ctx, role, args[0], args[1])
		if err != nil {
			switch {
			case errors.Is(err, accounts.ErrInvalidCredentials):
				log.Info("login rejected", slog.String("role", string(role)), slog.String("username", args[0]))
				return []string{msgLoginFailed}
			case errors.Is(err, accounts.ErrTooManyAttempts):
				log.Warn("login throttled", slog.String("role", string(role)), slog.String("username", args[0]))
				return []string{msgTooManyAttempts}
			}
			var vErr *accounts.ValidationError
			if errors.As(err, &vErr) {
				log.Warn("invalid request", slog.Any("err", err))
				return []string{msgLoginFailed}
			}
			log.Error("login failed", slog.Any("err", err), slog.String("role", string(role)))
			return []string{msgLoginFailed}
		}

		if err := sess.Login(id); err != nil {
			return []string{msgAlreadyLoggedIn}
		}
		log.Info("logged in", slog.String("identity", id.String()))
		return []string{"Logged in as " + id.Username}
	}
}

func (h *Handler) searchSchedule(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.RequireAny()
	if err != nil {
		return []string{msgLoginFirst}
	}
	if len(args) != 1 {
		return []string{msgTryAgain}
	}
	date, err := domain.ParseDate(args[0])
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", args[0]))
		return []string{msgTryAgain}
	}

	sched, err := h.booking.SearchSchedule(ctx, who, date)
	if err != nil {
		return h.bookingFailure(log, err, msgSearchFailed)
	}

	out := []string{"Caregivers:"}
	if len(sched.Caregivers) == 0 {
		out = append(out, msgNoCaregivers)
	}
	out = append(out, sched.Caregivers...)
	out = append(out, "Vaccines:")
	if len(sched.Vaccines) == 0 {
		out = append(out, msgNoVaccines)
	}
	for _, v := range sched.Vaccines {
		out = append(out, fmt.Sprintf("%s %d", v.Name, v.AvailableDoses))
	}

	log.Debug(
		"schedule searched",
		slog.String("date", date.String()),
		slog.Int("caregivers", len(sched.Caregivers)),
		slog.Int("vaccines", len(sched.Vaccines)),
	)
	return out
}

func (h *Handler) reserve(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.Require(domain.RolePatient)
	if err != nil {
		if errors.Is(err, session.ErrWrongRole) {
			return []string{msgLoginAsPatient}
		}
		return []string{msgLoginFirst}
	}
	if len(args) != 2 {
		return []string{msgTryAgain}
	}
	date, err := domain.ParseDate(args[0])
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", args[0]))
		return []string{msgTryAgain}
	}
	vaccine := args[1]

	appt, err := h.booking.Reserve(ctx, who, date, vaccine)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInsufficientSupply):
			log.Info("reserve rejected", slog.String("reason", "supply"), slog.String("vaccine", vaccine))
			return []string{msgNotEnoughDoses}
		case errors.Is(err, booking.ErrNoCaregiverAvailable):
			log.Info("reserve rejected", slog.String("reason", "no_caregiver"), slog.String("date", date.String()))
			return []string{msgNoCaregiver}
		}
		return h.bookingFailure(log, err, msgReserveFailed)
	}

	log.Info(
		"appointment reserved",
		slog.Int64("appointment_id", appt.ID),
		slog.String("patient", appt.PatientUsername),
		slog.String("caregiver", appt.CaregiverUsername),
		slog.String("date", appt.Date.String()),
		slog.String("vaccine", appt.VaccineName),
	)
	return []string{fmt.Sprintf("Appointment ID %d, Caregiver username %s", appt.ID, appt.CaregiverUsername)}
}

func (h *Handler) uploadAvailability(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.Require(domain.RoleCaregiver)
	if err != nil {
		return []string{msgLoginAsCaregiver}
	}
	if len(args) != 1 {
		return []string{msgTryAgainBang}
	}
	date, err := domain.ParseDate(args[0])
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", args[0]))
		return []string{msgInvalidDate}
	}

	if err := h.booking.UploadAvailability(ctx, who, date); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("availability upload conflict", slog.String("caregiver", who.Username), slog.String("date", date.String()))
			return []string{msgAlreadyUploaded}
		}
		return h.bookingFailure(log, err, msgUploadFailed)
	}

	log.Info("availability uploaded", slog.String("caregiver", who.Username), slog.String("date", date.String()))
	return []string{"Availability uploaded!"}
}

func (h *Handler) cancel(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.RequireAny()
	if err != nil {
		return []string{msgLoginFirst}
	}
	if len(args) != 1 {
		return []string{msgTryAgain}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		log.Warn("invalid request", slog.String("reason", "invalid_id"), slog.String("appointment_id", args[0]))
		return []string{msgTryAgain}
	}

	appt, err := h.booking.Cancel(ctx, who, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Info("appointment not found", slog.Int64("appointment_id", id))
			return []string{fmt.Sprintf("Appointment ID %d does not exist", id)}
		case errors.Is(err, booking.ErrForbidden):
			log.Warn("cancel forbidden", slog.Int64("appointment_id", id), slog.String("identity", who.String()))
			return []string{fmt.Sprintf("Appointment ID %d is not yours to cancel", id)}
		}
		return h.bookingFailure(log, err, msgCancelFailed)
	}

	log.Info(
		"appointment canceled",
		slog.Int64("appointment_id", appt.ID),
		slog.String("caregiver", appt.CaregiverUsername),
		slog.String("date", appt.Date.String()),
	)
	return []string{fmt.Sprintf("Appointment ID %d has been successfully canceled", appt.ID)}
}

func (h *Handler) addDoses(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.Require(domain.RoleCaregiver)
	if err != nil {
		return []string{msgLoginAsCaregiver}
	}
	if len(args) != 2 {
		return []string{msgTryAgainBang}
	}
	count, err := strconv.Atoi(args[1])
	if err != nil || count < 0 {
		log.Warn("invalid request", slog.String("reason", "invalid_count"), slog.String("count", args[1]))
		return []string{msgTryAgainBang}
	}

	v, err := h.booking.AddDoses(ctx, who, args[0], count)
	if err != nil {
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			return []string{msgTryAgainBang}
		}
		return h.bookingFailure(log, err, msgAddDosesFailed)
	}

	log.Info("doses added", slog.String("vaccine", v.Name), slog.Int("added", count), slog.Int("available", v.AvailableDoses))
	return []string{"Doses updated!"}
}

func (h *Handler) showAppointments(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	who, err := sess.RequireAny()
	if err != nil {
		return []string{msgLoginFirst}
	}
	if len(args) != 0 {
		return []string{msgTryAgain}
	}

	appts, err := h.booking.ListAppointments(ctx, who)
	if err != nil {
		return h.bookingFailure(log, err, msgAppointmentsError)
	}
	if len(appts) == 0 {
		return []string{msgNoAppointments}
	}

	out := make([]string, 0, len(appts))
	for _, a := range appts {
		out = append(out, fmt.Sprintf("%d %s %s %s", a.ID, a.VaccineName, a.Date, a.Counterpart(who.Role)))
	}
	log.Debug("appointments listed", slog.String("identity", who.String()), slog.Int("count", len(out)))
	return out
}

func (h *Handler) logout(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string {
	if sess.Identity().Anonymous() {
		return []string{msgLoginFirst}
	}
	if len(args) != 0 {
		return []string{msgTryAgain}
	}
	prev, err := sess.Logout()
	if err != nil {
		return []string{msgLoginFirst}
	}
	log.Info("logged out", slog.String("identity", prev.String()))
	return []string{"Successfully logged out"}
}

// bookingFailure maps the errors every booking command treats alike.
func (h *Handler) bookingFailure(log *slog.Logger, err error, storageMsg string) []string {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return []string{msgTryAgain}
	case errors.Is(err, booking.ErrForbidden):
		log.Warn("forbidden", slog.Any("err", err))
		return []string{msgLoginFirst}
	}
	log.Error("command failed", slog.Any("err", err))
	return []string{storageMsg}
}

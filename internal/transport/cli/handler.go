// Package cli exposes the scheduler as a line-oriented command shell.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"vaxsched/internal/domain"
	"vaxsched/internal/service/booking"
	"vaxsched/internal/session"
)

const DefaultCommandTimeout = 10 * time.Second

type accountsService interface {
	Register(ctx context.Context, role domain.Role, username, password string) (domain.Identity, error)
	Authenticate(ctx context.Context, role domain.Role, username, password string) (domain.Identity, error)
}

type bookingService interface {
	Reserve(ctx context.Context, who domain.Identity, date domain.Date, vaccine string) (domain.Appointment, error)
	Cancel(ctx context.Context, who domain.Identity, id int64) (domain.Appointment, error)
	UploadAvailability(ctx context.Context, who domain.Identity, date domain.Date) error
	AddDoses(ctx context.Context, who domain.Identity, vaccine string, count int) (domain.Vaccine, error)
	SearchSchedule(ctx context.Context, who domain.Identity, date domain.Date) (booking.Schedule, error)
	ListAppointments(ctx context.Context, who domain.Identity) ([]domain.Appointment, error)
}

type Handler struct {
	accounts accountsService
	booking  bookingService
	log      *slog.Logger
	timeout  time.Duration
	commands map[string]command
}

type command struct {
	usage string
	run   func(ctx context.Context, log *slog.Logger, sess *session.Session, args []string) []string
}

func NewHandler(accounts accountsService, booking bookingService, log *slog.Logger, timeout time.Duration) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	h := &Handler{
		accounts: accounts,
		booking:  booking,
		log:      log.With(slog.String("component", "cli")),
		timeout:  timeout,
	}
	h.commands = map[string]command{
		"create_patient":            {usage: "create_patient <username> <password>", run: h.createAccount(domain.RolePatient)},
		"create_caregiver":          {usage: "create_caregiver <username> <password>", run: h.createAccount(domain.RoleCaregiver)},
		"login_patient":             {usage: "login_patient <username> <password>", run: h.login(domain.RolePatient)},
		"login_caregiver":           {usage: "login_caregiver <username> <password>", run: h.login(domain.RoleCaregiver)},
		"search_caregiver_schedule": {usage: "search_caregiver_schedule <date>", run: h.searchSchedule},
		"reserve":                   {usage: "reserve <date> <vaccine>", run: h.reserve},
		"upload_availability":       {usage: "upload_availability <date>", run: h.uploadAvailability},
		"cancel":                    {usage: "cancel <appointment_id>", run: h.cancel},
		"add_doses":                 {usage: "add_doses <vaccine> <number>", run: h.addDoses},
		"show_appointments":         {usage: "show_appointments", run: h.showAppointments},
		"logout":                    {usage: "logout", run: h.logout},
	}
	return h
}

var commandOrder = []string{
	"create_patient",
	"create_caregiver",
	"login_patient",
	"login_caregiver",
	"search_caregiver_schedule",
	"reserve",
	"upload_availability",
	"cancel",
	"add_doses",
	"show_appointments",
	"logout",
}

func (h *Handler) Banner() string {
	var b strings.Builder
	b.WriteString("\nWelcome to the COVID-19 Vaccine Reservation Scheduling Application!\n")
	b.WriteString("*** Please enter one of the following commands ***\n")
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "> %s\n", h.commands[name].usage)
	}
	b.WriteString("> quit\n")
	return b.String()
}

// Run reads commands from in until quit, EOF or ctx is cancelled. Every
// reply goes to out. A new session is opened for the duration of the call.
//
// Run owns in: when it implements io.Closer it is closed on return, which
// unblocks the reader goroutine. A reader that cannot be closed (or a
// blocking file descriptor such as a terminal) keeps the goroutine parked in
// Read until the next line or EOF arrives; it then exits without sending.
func (h *Handler) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	sess := session.New()
	log := h.log.With(slog.String("session_id", sess.ID.String()))
	log.Info("session started")
	defer log.Info("session ended")

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer func() {
		close(done)
		if c, ok := in.(io.Closer); ok {
			_ = c.Close()
		}
	}()
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		select {
		case <-done:
		default:
			readErr <- sc.Err()
		}
	}()

	if _, err := io.WriteString(out, h.Banner()+"\n"); err != nil {
		return err
	}
	for {
		if _, err := io.WriteString(out, "> "); err != nil {
			return err
		}
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		reply, quit := h.Execute(ctx, sess, line)
		if reply != "" {
			if _, err := io.WriteString(out, reply+"\n"); err != nil {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

// Execute runs one command line against sess and returns the text to show
// the user. The second result reports whether the client asked to quit.
func (h *Handler) Execute(ctx context.Context, sess *session.Session, line string) (string, bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return msgTryAgainBang, false
	}

	name := tokens[0]
	if name == "quit" {
		return "Bye!", true
	}
	cmd, ok := h.commands[name]
	if !ok {
		h.log.Debug("unknown command", slog.String("command", name), slog.String("session_id", sess.ID.String()))
		return "Invalid operation name!", false
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	log := h.log.With(
		slog.String("command", name),
		slog.String("session_id", sess.ID.String()),
	)
	return strings.Join(cmd.run(ctx, log, sess, tokens[1:]), "\n"), false
}

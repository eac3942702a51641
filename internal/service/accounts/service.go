package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"vaxsched/internal/auth"
	"vaxsched/internal/domain"
	"vaxsched/internal/ratelimit"
	"vaxsched/internal/store"
)

const MaxUsernameLength = 255

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo    store.AccountRepository
	limiter ratelimit.Limiter
}

// NewService returns an accounts service. A nil limiter disables login
// throttling.
func NewService(repo store.AccountRepository, limiter ratelimit.Limiter) *Service {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Service{repo: repo, limiter: limiter}
}

func (s *Service) Register(ctx context.Context, role domain.Role, username, password string) (domain.Identity, error) {
	if !role.Valid() {
		return domain.Identity{}, validationError("role must be patient or caregiver")
	}
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return domain.Identity{}, err
	}
	if password == "" {
		return domain.Identity{}, validationError("password is required")
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate salt: %w", err)
	}
	hash, err := auth.HashPassword(password, salt)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	err = s.repo.CreateAccount(ctx, role, domain.Credential{
		Username:     username,
		Salt:         salt,
		PasswordHash: hash,
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Role: role, Username: username}, nil
}

// Authenticate checks a password against the stored credential. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, role domain.Role, username, password string) (domain.Identity, error) {
	if !role.Valid() {
		return domain.Identity{}, validationError("role must be patient or caregiver")
	}
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return domain.Identity{}, err
	}
	key := string(role) + ":" + username
	if !s.limiter.Allow(key) {
		return domain.Identity{}, ErrTooManyAttempts
	}

	cred, err := s.repo.GetAccount(ctx, role, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrInvalidCredentials
		}
		return domain.Identity{}, err
	}
	if !auth.CheckPassword(password, cred.Salt, cred.PasswordHash) {
		return domain.Identity{}, ErrInvalidCredentials
	}
	if r, ok := s.limiter.(ratelimit.Resetter); ok {
		r.Reset(key)
	}
	return domain.Identity{Role: role, Username: cred.Username}, nil
}

func validateUsername(username string) error {
	if username == "" {
		return validationError("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return validationError("username too long")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return validationError("username must not contain whitespace")
	}
	return nil
}

package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

// AccountRepo persists patient and caregiver credentials.
type AccountRepo struct {
	db *bun.DB
}

func NewAccountRepo(db *bun.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

var _ store.AccountRepository = (*AccountRepo)(nil)

func (r *AccountRepo) CreateAccount(ctx context.Context, role domain.Role, cred domain.Credential) error {
	var model any
	switch role {
	case domain.RolePatient:
		model = &domain.Patient{
			Username:     cred.Username,
			Salt:         cred.Salt,
			PasswordHash: cred.PasswordHash,
			CreatedAt:    cred.CreatedAt,
		}
	case domain.RoleCaregiver:
		model = &domain.Caregiver{
			Username:     cred.Username,
			Salt:         cred.Salt,
			PasswordHash: cred.PasswordHash,
			CreatedAt:    cred.CreatedAt,
		}
	default:
		return fmt.Errorf("create account: unknown role %q", role)
	}

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", role, cred.Username, store.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *AccountRepo) GetAccount(ctx context.Context, role domain.Role, username string) (domain.Credential, error) {
	var (
		cred domain.Credential
		err  error
	)
	switch role {
	case domain.RolePatient:
		var p domain.Patient
		err = r.db.NewSelect().Model(&p).Where("username = ?", username).Limit(1).Scan(ctx)
		cred = domain.Credential{Username: p.Username, Salt: p.Salt, PasswordHash: p.PasswordHash, CreatedAt: p.CreatedAt}
	case domain.RoleCaregiver:
		var c domain.Caregiver
		err = r.db.NewSelect().Model(&c).Where("username = ?", username).Limit(1).Scan(ctx)
		cred = domain.Credential{Username: c.Username, Salt: c.Salt, PasswordHash: c.PasswordHash, CreatedAt: c.CreatedAt}
	default:
		return domain.Credential{}, fmt.Errorf("get account: unknown role %q", role)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, fmt.Errorf("%s %q: %w", role, username, store.ErrNotFound)
		}
		return domain.Credential{}, err
	}
	return cred, nil
}

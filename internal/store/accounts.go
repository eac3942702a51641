package store

import (
	"context"

	"vaxsched/internal/domain"
)

type AccountRepository interface {
	CreateAccount(ctx context.Context, role domain.Role, cred domain.Credential) error
	GetAccount(ctx context.Context, role domain.Role, username string) (domain.Credential, error)
}

package core

import (
	"context"

	"github.com/dkeye/Share/internal/domain"
)

// QuotaPolicy is supplied by the account collaborator.
type QuotaPolicy interface {
	IsRestricted(id domain.Identity) bool
	CeilingBytes() int64
}

// LedgerStore persists quota accounts. Load returns domain.ErrAccountNotFound
// for an identity that was never saved.
type LedgerStore interface {
	Load(ctx context.Context, id domain.Identity) (domain.Account, error)
	Save(ctx context.Context, acc domain.Account) error
}

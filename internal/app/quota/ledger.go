// Package quota gates how many bytes an identity may share.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
	"github.com/dkeye/Share/internal/metrics"
)

type account struct {
	mu     sync.Mutex
	acc    domain.Account
	loaded bool
}

// Ledger keeps one counter per identity. Every mutation of an account runs
// under that account's own lock; the map lock is never held while an
// account is touched.
type Ledger struct {
	policy  core.QuotaPolicy
	store   core.LedgerStore
	metrics *metrics.Metrics

	mu       sync.RWMutex
	accounts map[domain.Identity]*account
}

// NewLedger builds a ledger. store may be nil, in which case totals live
// only in memory.
func NewLedger(policy core.QuotaPolicy, store core.LedgerStore, m *metrics.Metrics) *Ledger {
	return &Ledger{
		policy:   policy,
		store:    store,
		metrics:  m,
		accounts: make(map[domain.Identity]*account),
	}
}

func (l *Ledger) account(id domain.Identity) *account {
	l.mu.RLock()
	a, ok := l.accounts[id]
	l.mu.RUnlock()
	if ok {
		return a
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[id]; ok {
		return a
	}
	a = &account{}
	l.accounts[id] = a
	return a
}

// load must be called with a.mu held.
func (l *Ledger) load(ctx context.Context, id domain.Identity, a *account) error {
	if a.loaded {
		return nil
	}
	if l.store != nil {
		stored, err := l.store.Load(ctx, id)
		switch {
		case err == nil:
			a.acc = stored
			a.loaded = true
			return nil
		case !errors.Is(err, domain.ErrAccountNotFound):
			return fmt.Errorf("load account %s: %w", id, err)
		}
	}
	tier := domain.Unrestricted
	if l.policy != nil && l.policy.IsRestricted(id) {
		tier = domain.Restricted
	}
	a.acc = domain.Account{ID: id, Tier: tier}
	a.loaded = true
	return nil
}

// save must be called with a.mu held. On failure the previous total is put back.
func (l *Ledger) save(ctx context.Context, a *account, prev int64) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, a.acc); err != nil {
		a.acc.Total = prev
		return fmt.Errorf("save account %s: %w", a.acc.ID, err)
	}
	return nil
}

func (l *Ledger) ceiling() int64 {
	if l.policy == nil {
		return 0
	}
	return l.policy.CeilingBytes()
}

// TryReserve admits size more bytes for id, or returns domain.ErrQuotaExceeded
// without touching the total.
func (l *Ledger) TryReserve(ctx context.Context, id domain.Identity, size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSize, size)
	}
	a := l.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := l.load(ctx, id, a); err != nil {
		return err
	}

	prev := a.acc.Total
	if size > math.MaxInt64-prev {
		l.metrics.QuotaDecision("invalid")
		return fmt.Errorf("%w: %d + %d overflows the total", domain.ErrInvalidSize, prev, size)
	}
	if a.acc.Tier == domain.Restricted {
		limit := l.ceiling()
		if prev > limit || size > limit-prev {
			l.metrics.QuotaDecision("denied")
			log.Info().
				Str("module", "quota.ledger").
				Str("identity", string(id)).
				Str("size", humanize.IBytes(uint64(size))).
				Str("used", humanize.IBytes(uint64(prev))).
				Str("limit", humanize.IBytes(uint64(limit))).
				Msg("reservation denied")
			return fmt.Errorf("%w: %d + %d > %d", domain.ErrQuotaExceeded, prev, size, limit)
		}
	}
	a.acc.Total = prev + size
	if err := l.save(ctx, a, prev); err != nil {
		l.metrics.QuotaDecision("error")
		return err
	}
	l.metrics.QuotaDecision("admitted")
	log.Debug().Str("module", "quota.ledger").Str("identity", string(id)).Int64("size", size).Int64("total", a.acc.Total).Msg("reserved")
	return nil
}

// Release credits size bytes back, never below zero.
func (l *Ledger) Release(ctx context.Context, id domain.Identity, size int64) error {
	if size <= 0 {
		return nil
	}
	a := l.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := l.load(ctx, id, a); err != nil {
		return err
	}
	prev := a.acc.Total
	a.acc.Total = max(prev-size, 0)
	if err := l.save(ctx, a, prev); err != nil {
		return err
	}
	log.Debug().Str("module", "quota.ledger").Str("identity", string(id)).Int64("size", size).Int64("total", a.acc.Total).Msg("released")
	return nil
}

// Usage is a read-only view of one account.
type Usage struct {
	Account   domain.Account
	Limit     int64
	Remaining int64
}

func (u Usage) Restricted() bool { return u.Account.Tier == domain.Restricted }

func (l *Ledger) Usage(ctx context.Context, id domain.Identity) (Usage, error) {
	a := l.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := l.load(ctx, id, a); err != nil {
		return Usage{}, err
	}
	u := Usage{Account: a.acc}
	if a.acc.Tier == domain.Restricted {
		u.Limit = l.ceiling()
		u.Remaining = max(u.Limit-a.acc.Total, 0)
	}
	return u, nil
}

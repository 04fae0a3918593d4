// Package storage persists quota accounts.
package storage

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Share/internal/domain"
)

const accountPrefix = "quota/account/"

// BadgerStore implements core.LedgerStore on a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens the database at path. An empty path keeps everything in
// memory, which is what tests and throwaway dev servers use.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.With().Str("module", "storage.badger").Logger()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func accountKey(id domain.Identity) []byte {
	return []byte(accountPrefix + string(id))
}

func (s *BadgerStore) Load(_ context.Context, id domain.Identity) (domain.Account, error) {
	var acc domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &acc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load %s: %w", id, err)
	}
	return acc, nil
}

func (s *BadgerStore) Save(_ context.Context, acc domain.Account) error {
	val, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", acc.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(acc.ID), val)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", acc.ID, err)
	}
	return nil
}

// badgerLogger routes badger's printf logging through zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Msgf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Msgf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug().Msgf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace().Msgf(format, args...)
}

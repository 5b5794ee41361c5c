// Package inmemdb is a record store kept in memory, for development and tests.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
)

type (
	DB struct {
		user     *userTable
		cases    *caseTable
		progress *progressTable
		notifier core.Notifier
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	caseTable struct {
		sync.RWMutex
		table map[string]*cases.Case
	}

	// progressTable is append-only, in insertion order.
	progressTable struct {
		sync.RWMutex
		rows []cases.Progress
	}
)

var _ core.RecordStore = (*DB)(nil)

// Open returns an empty DB. notifier may be nil.
func Open(notifier core.Notifier) *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		cases:    &caseTable{table: make(map[string]*cases.Case)},
		progress: &progressTable{},
		notifier: notifier,
	}
}

func (db *DB) Ping(context.Context) error { return nil }
func (db *DB) Close() error               { return nil }

func (db *DB) notify(collection string) {
	if db.notifier != nil {
		db.notifier.Notify(collection)
	}
}

// Package inmemdb is the in-memory storage used in dev and tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/presence/core/journal"
)

type (
	DB struct {
		journal *journalTable
	}

	journalTable struct {
		sync.RWMutex
		table []journal.Entry // in insertion order
	}
)

func Open() *DB {
	return &DB{journal: new(journalTable)}
}

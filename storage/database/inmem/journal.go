package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/presence/core/journal"
)

type journalRepository struct {
	db *journalTable
}

var _ journal.Repository = (*journalRepository)(nil) // interface compliance check

func NewJournalRepository(db *DB) *journalRepository {
	return &journalRepository{db: db.journal}
}

func (repo *journalRepository) CreateEntry(_ context.Context, entry journal.Entry) (journal.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table = append(repo.db.table, entry)
	return entry, nil
}

func (repo *journalRepository) FilterEntries(_ context.Context, filter journal.QueryFilter) ([]journal.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]journal.Entry, 0)
	for i := len(repo.db.table) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(entries) == filter.Limit {
			break
		}
		if e := repo.db.table[i]; matches(e, filter) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func matches(e journal.Entry, filter journal.QueryFilter) bool {
	switch {
	case filter.Kind != "" && e.Kind != filter.Kind:
		return false
	case filter.SessionID != "" && e.SessionID != filter.SessionID:
		return false
	case filter.Course != "" && !strings.EqualFold(e.Course, filter.Course):
		return false
	case !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since):
		return false
	}
	return true
}

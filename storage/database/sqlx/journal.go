package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/presence/core/journal"
)

const (
	journalColumns = "id, kind, session_id, course, period, date, detail, count, ack_id, error, created_at"

	insertJournal = `INSERT INTO journal (` + journalColumns + `)
VALUES (:id, :kind, :session_id, :course, :period, :date, :detail, :count, :ack_id, :error, :created_at)`
)

type (
	journalRepository struct {
		db *sqlx.DB
	}

	journalRow struct {
		ID        string      `db:"id"`
		Kind      string      `db:"kind"`
		SessionID string      `db:"session_id"`
		Course    string      `db:"course"`
		Period    string      `db:"period"`
		Date      string      `db:"date"`
		Detail    string      `db:"detail"`
		Count     int         `db:"count"`
		AckID     null.String `db:"ack_id"`
		Error     null.String `db:"error"`
		CreatedAt time.Time   `db:"created_at"`
	}
)

var _ journal.Repository = (*journalRepository)(nil) // interface compliance check

func NewJournalRepository(db *sqlx.DB) *journalRepository {
	return &journalRepository{db: db}
}

func (repo journalRepository) row(e journal.Entry) journalRow {
	return journalRow{
		ID:        e.ID,
		Kind:      string(e.Kind),
		SessionID: e.SessionID,
		Course:    e.Course,
		Period:    e.Period,
		Date:      e.Date,
		Detail:    e.Detail,
		Count:     e.Count,
		AckID:     null.NewString(e.AckID, e.AckID != ""),
		Error:     null.NewString(e.Error, e.Error != ""),
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func (repo journalRepository) entry(r journalRow) journal.Entry {
	return journal.Entry{
		ID:        r.ID,
		Kind:      journal.Kind(r.Kind),
		SessionID: r.SessionID,
		Course:    r.Course,
		Period:    r.Period,
		Date:      r.Date,
		Detail:    r.Detail,
		Count:     r.Count,
		AckID:     r.AckID.String,
		Error:     r.Error.String,
		CreatedAt: r.CreatedAt,
	}
}

func (repo journalRepository) CreateEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	if _, err := repo.db.NamedExecContext(ctx, insertJournal, repo.row(e)); err != nil {
		return journal.Entry{}, errors.Wrap(err, "inserting journal entry")
	}
	return e, nil
}

func (repo journalRepository) FilterEntries(ctx context.Context, filter journal.QueryFilter) ([]journal.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Course != "" {
		where = append(where, "lower(course) = lower(?)")
		args = append(args, filter.Course)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	q := "SELECT " + journalColumns + " FROM journal"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []journalRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying journal")
	}
	entries := make([]journal.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, repo.entry(r))
	}
	return entries, nil
}

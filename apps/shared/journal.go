// Package shared holds the wiring both binaries need.
package shared

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/journal"
	"github.com/trezcool/presence/storage/database"
	inmemdb "github.com/trezcool/presence/storage/database/inmem"
	sqlxrepos "github.com/trezcool/presence/storage/database/sqlx"
)

// OpenJournal returns the journal service backed by the configured database, creating it when
// missing, or by memory when no database engine is set. With migrate, pending migrations are
// applied first. db is nil for the in-memory journal.
func OpenJournal(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (*journal.Service, *sqlx.DB, error) {
	if conf.Database.Engine == "" {
		logger.Info("no database configured, keeping the journal in memory")
		return journal.NewService(inmemdb.NewJournalRepository(inmemdb.Open()), logger), nil, nil
	}

	if err := database.CreateIfNotExist(ctx, conf.Database); err != nil {
		return nil, nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf.Database)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err = database.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrap(err, "migrating database")
		}
	}
	return journal.NewService(sqlxrepos.NewJournalRepository(db), logger), db, nil
}

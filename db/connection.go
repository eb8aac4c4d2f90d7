// Package db manages the SQLite job store connection and schema.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/errors"
)

// Open opens the SQLite database at the specified path with the settings
// the scheduler depends on (WAL for concurrent readers, foreign keys for
// execution cascade deletes, a busy timeout so writers back off instead of
// failing immediately).
// If logger is nil the open is silent.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := database.Exec("PRAGMA journal_mode = WAL"); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := database.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return database, nil
}

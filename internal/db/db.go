// Package db is the export outbox: a SQLite database recording each run's
// descriptors until an external job submitter picks them up.
//
// Responsibilities: open the database with the standard PRAGMAs, apply the
// embedded schema migrations, record runs, and hand pending descriptors to
// the submitter.
//
// Dependency rule: db may import pipeline and export; neither imports db.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/vegetation.report/internal/timeutil"
)

// pragmas are applied to every pooled connection.
const pragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=foreign_keys(1)"

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces the clock used for timestamps and retry back-off.
func WithClock(c timeutil.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// NewDB opens (creating if needed) the database at path and migrates it to
// the latest schema version.
func NewDB(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

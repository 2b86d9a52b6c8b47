package db

import (
	"strings"
	"time"

	"github.com/banshee-data/vegetation.report/internal/monitoring"
)

var logf = monitoring.Prefixed("db")

const (
	busyRetries = 5
	busyBackoff = 50 * time.Millisecond
)

// retryOnBusy runs fn, retrying with linear back-off while SQLite reports
// the database as locked.
func (db *DB) retryOnBusy(fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isSQLiteBusy(err) {
			return err
		}
		logf("database busy (attempt %d/%d): %v", attempt, busyRetries, err)
		if attempt < busyRetries {
			db.clock.Sleep(time.Duration(attempt) * busyBackoff)
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

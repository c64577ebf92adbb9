package store

import (
	"database/sql"
	"errors"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/soyeahso/deskd/internal/domain"
)

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. These are the expected collisions of racing
// find-or-create operations, not faults.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// isBusy reports whether err is transient lock contention.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// wrapPersistence converts a raw store failure into the pipeline's error
// taxonomy, marking lock contention retryable.
func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.PersistenceError{Op: op, Transient: isBusy(err), Err: err}
}

// isNotFound reports a no-rows query result.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

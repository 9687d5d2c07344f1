package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/ravelhq/ravel/internal/types"
)

// wrapDBError converts a raw database/sql error into the tagged
// types.Error taxonomy, following the teacher's wrapDBError pattern:
// sql.ErrNoRows becomes a NOT_FOUND, unique-constraint violations
// become a CONFLICT, everything else is a DATABASE_ERROR.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewError(types.ErrNotFound, "%s", op).WithDetails("%v", err)
	}
	if isUniqueViolation(err) {
		return types.NewError(types.ErrConflict, "%s", op).WithDetails("%v", err)
	}
	return types.NewError(types.ErrDatabase, "%s", op).WithDetails("%v", err)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY
// constraint failure. modernc.org/sqlite surfaces these as a plain
// error whose message contains "UNIQUE constraint failed" or
// "constraint failed: UNIQUE" depending on driver version, so this
// matches on substring rather than a typed sentinel.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: unique")
}

// isTransient reports whether err looks like a transient lock/busy
// condition worth one retry at the store boundary (spec.md §7).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

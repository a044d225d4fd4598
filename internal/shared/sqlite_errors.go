// Package shared provides small cross-cutting helpers.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// Error text fragments the sqlite driver emits when writers collide. The
// driver exposes no typed error for these, so matching on the message is
// the only option.
const (
	sqliteBusyMarker   = "SQLITE_BUSY"
	sqliteLockedMarker = "database is locked"
)

// IsSQLiteConflictError reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked"). These are transient and warrant a
// retry; any other database error does not.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, sqliteBusyMarker) || strings.Contains(msg, sqliteLockedMarker)
}

package db

import (
	"strings"
)

// IsMissingTable reports whether err comes from querying a relation that does not exist.
// Deployments that never migrated the archive table hit this on every legacy read.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	// PostgreSQL (SQLSTATE 42P01)
	if strings.Contains(msg, "42P01") || (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) {
		return true
	}

	// MySQL (error 1146)
	if strings.Contains(msg, "Error 1146") {
		return true
	}

	// SQLite
	return strings.Contains(msg, "no such table")
}

package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// IsConflict reports whether err is a transient transaction failure the
// caller may retry: a lock wait timeout, a deadlock/serialization abort, or
// the transaction's own deadline expiring.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205: // lock wait timeout exceeded
			return true
		case 1213: // deadlock found when trying to get lock
			return true
		}
	}

	// modernc.org/sqlite reports busy/locked through the error string.
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

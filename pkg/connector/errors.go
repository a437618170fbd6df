package connector

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes of the integrity constraint violation class
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// SQLState extracts the SQLSTATE code from a pgx or lib/pq error, or "" if there is none
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports whether err is a primary key or unique index violation
func IsUniqueViolation(err error) bool {
	return matches(err, sqlStateUniqueViolation, "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a foreign key violation
func IsForeignKeyViolation(err error) bool {
	return matches(err, sqlStateForeignKeyViolation, "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint violation
func IsCheckViolation(err error) bool {
	return matches(err, sqlStateCheckViolation, "CHECK constraint failed")
}

// IsConstraintViolation reports whether err belongs to the integrity constraint class
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if code := SQLState(err); code != "" {
		return strings.HasPrefix(code, "23")
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// IsConnectionError reports whether err means the store could not be reached
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	if strings.HasPrefix(SQLState(err), "08") {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

func matches(err error, sqlState, sqliteMessage string) bool {
	if err == nil {
		return false
	}
	if code := SQLState(err); code != "" {
		return code == sqlState
	}
	return strings.Contains(err.Error(), sqliteMessage)
}

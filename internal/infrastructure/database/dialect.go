package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Multi-row insert limits per backend. SQLite caps bound parameters at
// 32766 and postgres at 65535; both limits stay well below that for the
// four-column point value insert.
const (
	sqliteMaxInsertRows   = 1000
	postgresMaxInsertRows = 2000
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the differences between supported backends.
//
// Queries throughout the historian are written with ? placeholders and
// passed through Rebind before execution.
type Dialect interface {
	// Name returns the driver name ("sqlite3" or "postgres").
	Name() string

	// Rebind rewrites ? placeholders into the backend's bind syntax.
	Rebind(query string) string

	// IsTransient reports whether err is a lock, deadlock or recoverable
	// connection failure that is worth retrying.
	IsTransient(err error) bool

	// MaxInsertRows is the largest row count for one multi-row insert.
	MaxInsertRows() int

	// InsertReturningID executes an INSERT and returns the generated id.
	// The query must use ? placeholders and must not carry a RETURNING clause.
	InsertReturningID(ctx context.Context, ex Execer, query string, args ...any) (int64, error)
}

// sqliteDialect implements Dialect for mattn/go-sqlite3.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) IsTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return errors.Is(err, driver.ErrBadConn)
}

func (sqliteDialect) MaxInsertRows() int { return sqliteMaxInsertRows }

func (sqliteDialect) InsertReturningID(ctx context.Context, ex Execer, query string, args ...any) (int64, error) {
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// postgresDialect implements Dialect for lib/pq.
type postgresDialect struct{}

func (postgresDialect) Name() string { return DriverPostgres }

func (postgresDialect) Rebind(query string) string {
	return rebindDollar(query)
}

// SQLSTATE codes treated as transient.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassTransactionRollback = "40" // serialization_failure, deadlock_detected
	pgClassConnectionException = "08"
	pgLockNotAvailable         = "55P03"
	pgCannotConnectNow         = "57P03"
)

func (postgresDialect) IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case pgClassTransactionRollback, pgClassConnectionException:
			return true
		}
		return pqErr.Code == pgLockNotAvailable || pqErr.Code == pgCannotConnectNow
	}
	return errors.Is(err, driver.ErrBadConn)
}

func (postgresDialect) MaxInsertRows() int { return postgresMaxInsertRows }

func (d postgresDialect) InsertReturningID(ctx context.Context, ex Execer, query string, args ...any) (int64, error) {
	var id int64
	if err := ex.QueryRowContext(ctx, d.Rebind(query)+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebindDollar replaces ? placeholders with $1, $2, ... skipping quoted text.
func rebindDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16) //nolint:mnd // Room for a handful of multi-digit binds

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

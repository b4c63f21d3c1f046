package database

import "errors"

// Domain-specific errors for database operations.
var (
	// ErrUnknownDriver indicates the configured driver is not supported.
	ErrUnknownDriver = errors.New("database: unknown driver")

	// ErrMissingDSN indicates the postgres driver was selected without a DSN.
	ErrMissingDSN = errors.New("database: postgres driver requires a dsn")
)

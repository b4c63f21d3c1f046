// Package database provides backing store connectivity for the Gray Logic Historian.
//
// This package manages:
//   - SQLite connections with WAL mode for concurrent access (default)
//   - PostgreSQL connections for larger installations
//   - Schema migrations (additive-only), one directory per driver
//   - A Dialect describing placeholder syntax, generated-id retrieval,
//     multi-row insert limits and transient failure classification
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - Connection pooling reduces overhead
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Driver:      cfg.Database.Driver,
//	    Path:        cfg.Database.Path,
//	    DSN:         cfg.Database.DSN,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Queries are written with ? placeholders. DB.ExecContext, DB.QueryContext
// and DB.QueryRowContext rebind them for the connected backend; statements
// run on a *sql.Tx must be passed through Dialect().Rebind explicitly.
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql
package database

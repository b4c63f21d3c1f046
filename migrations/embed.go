// Package migrations embeds SQL migration files into the binary.
//
// This allows the historian to run migrations without needing the SQL files
// present on the filesystem - they're compiled into the executable.
// Each supported driver has its own directory.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/database"
)

//go:embed sqlite3/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Driver directories are at root of embedded FS
}

// Package migrations embeds the controller's SQL schema files so the
// binary can migrate its database without shipping loose .sql files.
package migrations

import (
	"embed"

	"github.com/dieterch/nas-automation/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // the embedded FS is rooted here
}

package taskflow

import "embed"

// MigrationsFS holds the schema migrations, one directory per store driver.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationsFS embed.FS

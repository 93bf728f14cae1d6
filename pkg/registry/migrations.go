package registry

import "embed"

// MigrationsFS embeds this package's SQL migrations for cmd/registrysvc to
// apply via dbutil.RunMigrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

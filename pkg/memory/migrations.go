package memory

import "embed"

// MigrationsFS embeds this package's SQL migrations for cmd/memorysvc to
// apply via dbutil.RunMigrations. plan_context/task_context live here too
// since the Plan/Task contracts (pkg/plan) share the Memory Service's
// database and migration set.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

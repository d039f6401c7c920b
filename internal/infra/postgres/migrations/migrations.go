package migrations

import "github.com/uptrace/bun/migrate"

// Migrations collects every schema step; each file registers itself in init.
var Migrations = migrate.NewMigrations()

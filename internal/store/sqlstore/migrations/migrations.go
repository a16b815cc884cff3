// Package migrations holds the bun migration set for the sqlite-backed
// store, registered against the shared Migrations set the way the teacher's
// internal/db/migrations package does.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()

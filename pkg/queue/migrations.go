package queue

import (
	"embed"

	"github.com/dmitrymomot/notifykit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations creates the jobs and jobs_dlq tables used by PgStorage.
var Migrations = pg.Migrations{FS: migrationFiles, Dir: "migrations"}

package crmconnect

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the transient_entries schema for postgres, with the
// sqlite variant under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}

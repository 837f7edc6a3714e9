package migrations

import "embed"

// FS contains embedded SQLite migrations for notifications storage.
//
//go:embed *.sql
var FS embed.FS

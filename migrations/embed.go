// Package migrations embeds the SQL schema applied by golang-migrate.
package migrations

import "embed"

// Files holds every numbered up/down migration.
//
//go:embed *.sql
var Files embed.FS

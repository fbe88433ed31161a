// Package sqlite embeds the goose migrations for the SQLite metadata store.
package sqlite

import "embed"

//go:embed *.sql
var Migrations embed.FS

// Package postgres embeds the goose migrations for the PostgreSQL metadata store.
package postgres

import "embed"

//go:embed *.sql
var Migrations embed.FS

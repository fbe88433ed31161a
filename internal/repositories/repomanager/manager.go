// Package repomanager aggregates the per-entity repositories over a single
// database handle and runs the embedded schema migrations. Repositories are
// handed a dbx.DBTX so the same manager serves both plain-connection and
// in-transaction use.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/chunks"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/files"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/providers"
)

type Manager interface {
	Files(db dbx.DBTX) files.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Providers(db dbx.DBTX) providers.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}

// Open opens the database for the configured driver and returns it together
// with the matching manager. Supported drivers: "sqlite", "pgx".
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Manager, error) {
	var m Manager
	switch driver {
	case "sqlite":
		m = NewSQLiteManager()
	case "pgx":
		m = NewPostgresManager()
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, m, nil
}

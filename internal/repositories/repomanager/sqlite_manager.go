package repomanager

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	migrations "github.com/dmitrijs2005/chunkvault/internal/migrations/sqlite"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/chunks"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/files"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/providers"
)

type SQLiteManager struct{}

func NewSQLiteManager() *SQLiteManager {
	return &SQLiteManager{}
}

func (m *SQLiteManager) Files(db dbx.DBTX) files.Repository {
	return files.NewSQLiteRepository(db)
}

func (m *SQLiteManager) Chunks(db dbx.DBTX) chunks.Repository {
	return chunks.NewSQLiteRepository(db)
}

func (m *SQLiteManager) Providers(db dbx.DBTX) providers.Repository {
	return providers.NewSQLiteRepository(db)
}

func (m *SQLiteManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

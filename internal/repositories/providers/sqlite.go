package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	query := `INSERT INTO providers (id, name, platform, version, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Platform, cfg.Version, string(cfg.Config), now.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("failed to insert provider config: %w", err)
	}
	cfg.CreatedAt = now
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers WHERE id=?`
	return scanProvider(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers WHERE name=?`
	return scanProvider(r.db.QueryRowContext(ctx, query, name))
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider configs: %w", err)
	}
	defer rows.Close()

	var result []*models.ProviderConfig
	for rows.Next() {
		item, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete refuses to remove a config that is still referenced by files. The
// files.provider_id foreign key is RESTRICT as well; this check exists to
// return a typed error instead of a bare constraint violation.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE provider_id=?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if n > 0 {
		return common.ErrorProviderInUse
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM providers WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider config: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.ProviderConfig, error) {
	var item models.ProviderConfig
	var config, createdAt string

	err := row.Scan(&item.ID, &item.Name, &item.Platform, &item.Version, &config, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select provider config: %w", err)
	}

	item.Config = json.RawMessage(config)
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &item, nil
}

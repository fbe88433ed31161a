package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	query := `INSERT INTO providers (id, name, platform, version, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Platform, cfg.Version, string(cfg.Config), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("failed to insert provider config: %w", err)
	}
	cfg.CreatedAt = now
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers WHERE id=$1`
	return scanPgProvider(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers WHERE name=$1`
	return scanPgProvider(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.ProviderConfig, error) {
	query := `SELECT id, name, platform, version, config, created_at FROM providers ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider configs: %w", err)
	}
	defer rows.Close()

	var result []*models.ProviderConfig
	for rows.Next() {
		item, err := scanPgProvider(rows)
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

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE provider_id=$1`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if n > 0 {
		return common.ErrorProviderInUse
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM providers WHERE id=$1`, id)
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

func scanPgProvider(row rowScanner) (*models.ProviderConfig, error) {
	var item models.ProviderConfig
	var config string

	err := row.Scan(&item.ID, &item.Name, &item.Platform, &item.Version, &config, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select provider config: %w", err)
	}

	item.Config = json.RawMessage(config)
	return &item, nil
}

package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	sctx, err := json.Marshal(file.StorageContext)
	if err != nil {
		return fmt.Errorf("marshal storage context: %w", err)
	}

	query := `INSERT INTO files (id, filename, description, size, sha256,
			encrypted_key, key_nonce, key_salt, provider_id, storage_context,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, query,
		file.ID, file.Filename, file.Description, file.Size, file.SHA256,
		file.EncryptedKey, file.KeyNonce, file.KeySalt, file.ProviderID, string(sctx),
		string(file.Status), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT id, filename, description, size, sha256,
			encrypted_key, key_nonce, key_salt, provider_id, storage_context,
			status, created_at, updated_at
		FROM files WHERE id=$1`

	return scanPgFile(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.File, error) {
	query := `SELECT id, filename, description, size, sha256,
			encrypted_key, key_nonce, key_salt, provider_id, storage_context,
			status, created_at, updated_at
		FROM files ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		item, err := scanPgFile(rows)
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

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.FileStatus) error {
	query := `UPDATE files SET status=$1, updated_at=$2 WHERE id=$3`
	return execOne(ctx, r.db, query, string(status), time.Now().UTC(), id)
}

func (r *PostgresRepository) UpdateStorageContext(ctx context.Context, id string, sctx map[string]string) error {
	b, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("marshal storage context: %w", err)
	}
	query := `UPDATE files SET storage_context=$1, updated_at=$2 WHERE id=$3`
	return execOne(ctx, r.db, query, string(b), time.Now().UTC(), id)
}

func (r *PostgresRepository) Complete(ctx context.Context, id string, size int64, sha256 string) error {
	query := `UPDATE files SET status=$1, size=$2, sha256=$3, updated_at=$4 WHERE id=$5`
	return execOne(ctx, r.db, query,
		string(models.FileStatusCompleted), size, sha256, time.Now().UTC(), id)
}

func (r *PostgresRepository) CountByProvider(ctx context.Context, providerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE provider_id=$1`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM files WHERE id=$1`, id)
}

func scanPgFile(row rowScanner) (*models.File, error) {
	var item models.File
	var sctx, status string

	err := row.Scan(&item.ID, &item.Filename, &item.Description, &item.Size, &item.SHA256,
		&item.EncryptedKey, &item.KeyNonce, &item.KeySalt, &item.ProviderID, &sctx,
		&status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	if err := json.Unmarshal([]byte(sctx), &item.StorageContext); err != nil {
		return nil, fmt.Errorf("unmarshal storage context: %w", err)
	}
	item.Status = models.FileStatus(status)
	return &item, nil
}

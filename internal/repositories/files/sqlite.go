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

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, file *models.File) error {
	sctx, err := json.Marshal(file.StorageContext)
	if err != nil {
		return fmt.Errorf("marshal storage context: %w", err)
	}

	query := `INSERT INTO files (id, filename, description, size, sha256,
			encrypted_key, key_nonce, key_salt, provider_id, storage_context,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, query,
		file.ID, file.Filename, file.Description, file.Size, file.SHA256,
		file.EncryptedKey, file.KeyNonce, file.KeySalt, file.ProviderID, string(sctx),
		string(file.Status), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT id, filename, description, size, sha256,
			encrypted_key, key_nonce, key_salt, provider_id, storage_context,
			status, created_at, updated_at
		FROM files WHERE id=?`

	return scanFile(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.File, error) {
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
		item, err := scanFile(rows)
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

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.FileStatus) error {
	query := `UPDATE files SET status=?, updated_at=? WHERE id=?`
	return execOne(ctx, r.db, query, string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (r *SQLiteRepository) UpdateStorageContext(ctx context.Context, id string, sctx map[string]string) error {
	b, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("marshal storage context: %w", err)
	}
	query := `UPDATE files SET storage_context=?, updated_at=? WHERE id=?`
	return execOne(ctx, r.db, query, string(b), time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (r *SQLiteRepository) Complete(ctx context.Context, id string, size int64, sha256 string) error {
	query := `UPDATE files SET status=?, size=?, sha256=?, updated_at=? WHERE id=?`
	return execOne(ctx, r.db, query,
		string(models.FileStatusCompleted), size, sha256,
		time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (r *SQLiteRepository) CountByProvider(ctx context.Context, providerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE provider_id=?`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM files WHERE id=?`, id)
}

// execOne runs query and requires exactly one affected row.
func execOne(ctx context.Context, db dbx.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch ra {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", ra)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.File, error) {
	var item models.File
	var sctx, status, createdAt, updatedAt string

	err := row.Scan(&item.ID, &item.Filename, &item.Description, &item.Size, &item.SHA256,
		&item.EncryptedKey, &item.KeyNonce, &item.KeySalt, &item.ProviderID, &sctx,
		&status, &createdAt, &updatedAt)
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
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &item, nil
}

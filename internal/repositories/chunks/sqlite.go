package chunks

import (
	"context"
	"encoding/json"
	"fmt"

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

func (r *SQLiteRepository) Create(ctx context.Context, chunk *models.Chunk) error {
	ref, err := json.Marshal(chunk.Ref)
	if err != nil {
		return fmt.Errorf("marshal chunk ref: %w", err)
	}

	query := `INSERT INTO chunks (file_id, chunk_order, plain_size, payload_size, ref, status)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		chunk.FileID, chunk.Order, chunk.PlainSize, chunk.PayloadSize, string(ref), string(chunk.Status))
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByFile(ctx context.Context, fileID string) ([]*models.Chunk, error) {
	query := `SELECT file_id, chunk_order, plain_size, payload_size, ref, status
		FROM chunks WHERE file_id=? ORDER BY chunk_order ASC`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.Chunk
	for rows.Next() {
		var item models.Chunk
		var ref, status string
		if err := rows.Scan(&item.FileID, &item.Order, &item.PlainSize, &item.PayloadSize, &ref, &status); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ref), &item.Ref); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ref: %w", err)
		}
		item.Status = models.ChunkStatus(status)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, fileID string, order int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id=? AND chunk_order=?`, fileID, order)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
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

func (r *SQLiteRepository) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

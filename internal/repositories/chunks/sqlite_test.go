package chunks

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/models"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE chunks (
  file_id TEXT NOT NULL,
  chunk_order INTEGER NOT NULL,
  plain_size INTEGER NOT NULL,
  payload_size INTEGER NOT NULL,
  ref TEXT NOT NULL,
  status TEXT NOT NULL,
  PRIMARY KEY (file_id, chunk_order)
);
`)
	require.NoError(t, err)

	return db
}

func storedChunk(order int) *models.Chunk {
	return &models.Chunk{
		FileID:      "f1",
		Order:       order,
		PlainSize:   100,
		PayloadSize: 132,
		Ref:         map[string]string{"message_id": "m1"},
		Status:      models.ChunkStatusStored,
	}
}

func TestCreateAndListByFile(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	// insert out of order; list must come back ordered
	require.NoError(t, r.Create(ctx, storedChunk(2)))
	require.NoError(t, r.Create(ctx, storedChunk(0)))
	require.NoError(t, r.Create(ctx, storedChunk(1)))

	got, err := r.ListByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Order)
		assert.Equal(t, "m1", c.Ref["message_id"])
		assert.Equal(t, models.ChunkStatusStored, c.Status)
	}
}

func TestCreate_DuplicateOrderFails(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, storedChunk(0)))
	assert.Error(t, r.Create(ctx, storedChunk(0)), "(file_id, chunk_order) must be unique")
}

func TestListByFile_Empty(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	got, err := r.ListByFile(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, storedChunk(0)))
	require.NoError(t, r.Delete(ctx, "f1", 0))
	assert.ErrorIs(t, r.Delete(ctx, "f1", 0), common.ErrorNotFound)
}

func TestDeleteByFile(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, storedChunk(0)))
	require.NoError(t, r.Create(ctx, storedChunk(1)))

	require.NoError(t, r.DeleteByFile(ctx, "f1"))

	got, err := r.ListByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// deleting an already-empty file is fine
	assert.NoError(t, r.DeleteByFile(ctx, "f1"))
}

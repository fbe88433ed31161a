// Package files defines the persistence port for File records and its SQL
// adapters.
package files

import (
	"context"

	"github.com/dmitrijs2005/chunkvault/internal/models"
)

type Repository interface {
	// Create inserts a new file record.
	Create(ctx context.Context, file *models.File) error

	// GetByID returns the file or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.File, error)

	// List returns all files ordered by creation time, newest first.
	List(ctx context.Context) ([]*models.File, error)

	// UpdateStatus moves the file to the given lifecycle state.
	UpdateStatus(ctx context.Context, id string, status models.FileStatus) error

	// UpdateStorageContext persists the provider routing context obtained
	// from PrepareStorage.
	UpdateStorageContext(ctx context.Context, id string, sctx map[string]string) error

	// Complete records the final size and checksum and marks the file completed.
	Complete(ctx context.Context, id string, size int64, sha256 string) error

	// CountByProvider reports how many files reference a provider config.
	CountByProvider(ctx context.Context, providerID string) (int64, error)

	// Delete removes the file record. Chunk records must be gone first.
	Delete(ctx context.Context, id string) error
}

// Package chunks defines the persistence port for Chunk records and its SQL
// adapters. A chunk row is inserted only after the provider confirms the
// upload, so every stored row carries a usable reference.
package chunks

import (
	"context"

	"github.com/dmitrijs2005/chunkvault/internal/models"
)

type Repository interface {
	// Create inserts one chunk record tied to a successful upload.
	Create(ctx context.Context, chunk *models.Chunk) error

	// ListByFile returns all chunks of a file in ascending order.
	ListByFile(ctx context.Context, fileID string) ([]*models.Chunk, error)

	// Delete removes a single chunk record.
	Delete(ctx context.Context, fileID string, order int) error

	// DeleteByFile removes all chunk records of a file.
	DeleteByFile(ctx context.Context, fileID string) error
}

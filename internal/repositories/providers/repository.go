// Package providers defines the persistence port for storage provider
// configurations and its SQL adapters.
package providers

import (
	"context"

	"github.com/dmitrijs2005/chunkvault/internal/models"
)

type Repository interface {
	// Create inserts a new named configuration.
	// Returns common.ErrorAlreadyExists when the name is taken.
	Create(ctx context.Context, cfg *models.ProviderConfig) error

	// GetByID returns the config or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.ProviderConfig, error)

	// GetByName returns the config or common.ErrorNotFound.
	GetByName(ctx context.Context, name string) (*models.ProviderConfig, error)

	// List returns all configs ordered by name.
	List(ctx context.Context) ([]*models.ProviderConfig, error)

	// Delete removes a config. Returns common.ErrorProviderInUse while any
	// file still references it.
	Delete(ctx context.Context, id string) error
}

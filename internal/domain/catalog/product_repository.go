package catalog

import (
	"context"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindBySourceID finds the product mapped to a remote source id
	FindBySourceID(ctx context.Context, sourceID int64) (*Product, error)

	// FindUnlinkedByReference finds a product with no source mapping by its reference code
	FindUnlinkedByReference(ctx context.Context, reference string) (*Product, error)

	// FindUnlinkedByName finds a product with no source mapping by name
	FindUnlinkedByName(ctx context.Context, name string) (*Product, error)

	// FindAll finds all products matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, error)

	// Save creates or updates a product together with its storefront category links
	Save(ctx context.Context, product *Product) error

	// Count counts products matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

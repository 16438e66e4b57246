package catalog

import (
	"context"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// CategoryRepository defines the interface for category persistence
type CategoryRepository interface {
	// FindByID finds a category by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Category, error)

	// FindBySourceID finds the category mapped to a remote source id
	FindBySourceID(ctx context.Context, sourceID int64) (*Category, error)

	// FindUnlinkedByName finds a category with no source mapping by name under parentID (nil for roots)
	FindUnlinkedByName(ctx context.Context, name string, parentID *uuid.UUID) (*Category, error)

	// FindAll finds all categories matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Category, error)

	// Save creates or updates a category
	Save(ctx context.Context, category *Category) error

	// MoveSubtree rewrites the path prefix and level of every descendant of the node
	// whose path was oldPath. It fails with MAX_DEPTH_EXCEEDED when a descendant
	// would end up deeper than MaxCategoryDepth.
	MoveSubtree(ctx context.Context, oldPath, newPath string, levelDelta int) error

	// Count counts categories matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

// PublicCategoryRepository defines the interface for storefront category persistence
type PublicCategoryRepository interface {
	FindBySourceID(ctx context.Context, sourceID int64) (*PublicCategory, error)
	FindUnlinkedByName(ctx context.Context, name string) (*PublicCategory, error)
	Save(ctx context.Context, category *PublicCategory) error
}

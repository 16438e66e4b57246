package inventory

import (
	"context"

	"github.com/google/uuid"
)

// StockLevelRepository defines the interface for stock level persistence
type StockLevelRepository interface {
	// FindBySourceID finds the stock level mapped to a source stock row
	FindBySourceID(ctx context.Context, sourceID int64) (*StockLevel, error)

	// FindByProduct finds all stock levels recorded for a product
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]StockLevel, error)

	// Save creates or updates a stock level
	Save(ctx context.Context, level *StockLevel) error
}

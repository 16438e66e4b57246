package inventory

import (
	"time"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLevel is the on-hand quantity of one product as reported by the source.
// SourceID identifies the stock row in the source system and is the upsert key.
type StockLevel struct {
	shared.BaseAggregateRoot
	SourceID        int64
	ProductID       uuid.UUID
	SourceProductID int64
	Quantity        decimal.Decimal
	SyncedAt        time.Time
}

// NewStockLevel creates a stock level for productID
func NewStockLevel(sourceID, sourceProductID int64, productID uuid.UUID, quantity decimal.Decimal) (*StockLevel, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if quantity.IsNegative() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Stock quantity cannot be negative")
	}
	return &StockLevel{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SourceID:          sourceID,
		ProductID:         productID,
		SourceProductID:   sourceProductID,
		Quantity:          quantity,
		SyncedAt:          time.Now(),
	}, nil
}

// SetQuantity records a new quantity and reports whether it changed
func (s *StockLevel) SetQuantity(productID uuid.UUID, quantity decimal.Decimal) (bool, error) {
	if quantity.IsNegative() {
		return false, shared.NewDomainError("INVALID_QUANTITY", "Stock quantity cannot be negative")
	}
	s.SyncedAt = time.Now()
	if s.ProductID == productID && s.Quantity.Equal(quantity) {
		return false, nil
	}
	s.ProductID = productID
	s.Quantity = quantity
	s.UpdatedAt = s.SyncedAt
	s.IncrementVersion()
	return true, nil
}

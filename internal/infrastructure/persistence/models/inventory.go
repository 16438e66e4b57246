package models

import (
	"time"

	"github.com/erp/importer/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLevelModel is the persistence model for a source stock row.
type StockLevelModel struct {
	AggregateModel
	SourceID        int64           `gorm:"not null;uniqueIndex:idx_stock_levels_source_id"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	SourceProductID int64           `gorm:"not null;index"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SyncedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLevelModel) TableName() string {
	return "stock_levels"
}

// ToDomain converts the persistence model to a domain StockLevel.
func (m *StockLevelModel) ToDomain() *inventory.StockLevel {
	return &inventory.StockLevel{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SourceID:          m.SourceID,
		ProductID:         m.ProductID,
		SourceProductID:   m.SourceProductID,
		Quantity:          m.Quantity,
		SyncedAt:          m.SyncedAt,
	}
}

// StockLevelModelFromDomain creates a persistence model from a domain StockLevel.
func StockLevelModelFromDomain(s *inventory.StockLevel) *StockLevelModel {
	m := &StockLevelModel{
		SourceID:        s.SourceID,
		ProductID:       s.ProductID,
		SourceProductID: s.SourceProductID,
		Quantity:        s.Quantity,
		SyncedAt:        s.SyncedAt,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}

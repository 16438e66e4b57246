package persistence

import (
	"context"

	"github.com/erp/importer/internal/domain/inventory"
	"github.com/erp/importer/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockLevelRepository implements StockLevelRepository using GORM
type GormStockLevelRepository struct {
	db *gorm.DB
}

// NewGormStockLevelRepository creates a new GormStockLevelRepository
func NewGormStockLevelRepository(db *gorm.DB) *GormStockLevelRepository {
	return &GormStockLevelRepository{db: db}
}

// FindBySourceID finds the stock level mapped to a source stock row
func (r *GormStockLevelRepository) FindBySourceID(ctx context.Context, sourceID int64) (*inventory.StockLevel, error) {
	var model models.StockLevelModel
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindByProduct finds all stock levels recorded for a product
func (r *GormStockLevelRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]inventory.StockLevel, error) {
	var rows []models.StockLevelModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("source_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	levels := make([]inventory.StockLevel, len(rows))
	for i := range rows {
		levels[i] = *rows[i].ToDomain()
	}
	return levels, nil
}

// Save creates or updates a stock level
func (r *GormStockLevelRepository) Save(ctx context.Context, level *inventory.StockLevel) error {
	model := models.StockLevelModelFromDomain(level)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true, Columns: []clause.Column{{Name: "id"}}}).
		Create(model).Error
}

// Ensure GormStockLevelRepository implements StockLevelRepository
var _ inventory.StockLevelRepository = (*GormStockLevelRepository)(nil)

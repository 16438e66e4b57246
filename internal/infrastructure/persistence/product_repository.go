package persistence

import (
	"context"
	"strings"

	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySourceID finds the product mapped to a remote source id
func (r *GormProductRepository) FindBySourceID(ctx context.Context, sourceID int64) (*catalog.Product, error) {
	return r.findOne(ctx, "source_id = ?", sourceID)
}

// FindUnlinkedByReference finds a product without a source mapping by its reference
func (r *GormProductRepository) FindUnlinkedByReference(ctx context.Context, reference string) (*catalog.Product, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "source_id IS NULL AND reference = ?", reference)
}

// FindUnlinkedByName finds a product without a source mapping by name, case-insensitively
func (r *GormProductRepository) FindUnlinkedByName(ctx context.Context, name string) (*catalog.Product, error) {
	return r.findOne(ctx, "source_id IS NULL AND LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
}

func (r *GormProductRepository) findOne(ctx context.Context, query string, args ...any) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Preload("PublicCategories").
		Where(query, args...).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindAll finds all products matching the filter
func (r *GormProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Product, error) {
	var rows []models.ProductModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.ProductModel{}), filter)

	if err := query.Preload("PublicCategories").Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]catalog.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, nil
}

// Save creates or updates a product and replaces its storefront category links
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	model := models.ProductModelFromDomain(product)
	db := r.db.WithContext(ctx)

	if err := db.Omit("PublicCategories").
		Clauses(clause.OnConflict{UpdateAll: true, Columns: []clause.Column{{Name: "id"}}}).
		Create(model).Error; err != nil {
		return err
	}

	if err := db.Where("product_id = ?", product.ID).
		Delete(&models.ProductPublicCategoryModel{}).Error; err != nil {
		return err
	}
	if len(product.PublicCategoryIDs) == 0 {
		return nil
	}

	links := make([]models.ProductPublicCategoryModel, len(product.PublicCategoryIDs))
	for i, id := range product.PublicCategoryIDs {
		links[i] = models.ProductPublicCategoryModel{ProductID: product.ID, PublicCategoryID: id}
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

// Count counts products matching the filter
func (r *GormProductRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.ProductModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormProductRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, ProductSortFields, "created_at")
	return query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormProductRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(reference) LIKE ? OR ean13 LIKE ?", pattern, pattern, pattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "category_id":
			query = query.Where("category_id = ?", value)
		case "type":
			query = query.Where("type = ?", value)
		case "active":
			query = query.Where("active = ?", value)
		case "reference":
			query = query.Where("reference = ?", value)
		}
	}

	return query
}

// Ensure GormProductRepository implements ProductRepository
var _ catalog.ProductRepository = (*GormProductRepository)(nil)

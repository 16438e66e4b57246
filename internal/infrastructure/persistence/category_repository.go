package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCategoryRepository implements CategoryRepository using GORM
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// FindByID finds a category by its ID
func (r *GormCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Category, error) {
	var model models.CategoryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindBySourceID finds the category mapped to a remote source id
func (r *GormCategoryRepository) FindBySourceID(ctx context.Context, sourceID int64) (*catalog.Category, error) {
	var model models.CategoryModel
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindUnlinkedByName finds a category without a source mapping by name under parentID.
// A nil parentID matches root categories.
func (r *GormCategoryRepository) FindUnlinkedByName(ctx context.Context, name string, parentID *uuid.UUID) (*catalog.Category, error) {
	query := r.db.WithContext(ctx).
		Where("source_id IS NULL AND LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var model models.CategoryModel
	if err := query.Order("created_at ASC").First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindAll finds all categories matching the filter
func (r *GormCategoryRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Category, error) {
	var rows []models.CategoryModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.CategoryModel{}), filter)

	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	categories := make([]catalog.Category, len(rows))
	for i := range rows {
		categories[i] = *rows[i].ToDomain()
	}
	return categories, nil
}

// Save creates or updates a category
func (r *GormCategoryRepository) Save(ctx context.Context, category *catalog.Category) error {
	model := models.CategoryModelFromDomain(category)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true, Columns: []clause.Column{{Name: "id"}}}).
		Create(model).Error
}

// MoveSubtree rewrites the materialized path and level of the descendants of oldPath
func (r *GormCategoryRepository) MoveSubtree(ctx context.Context, oldPath, newPath string, levelDelta int) error {
	if oldPath == newPath && levelDelta == 0 {
		return nil
	}
	descendants := r.db.WithContext(ctx).Model(&models.CategoryModel{}).Where("path LIKE ?", oldPath+"/%")

	deepest := -1
	if err := descendants.Session(&gorm.Session{}).Select("COALESCE(MAX(level), -1)").Row().Scan(&deepest); err != nil {
		return err
	}
	if deepest < 0 {
		return nil
	}
	if deepest+levelDelta > catalog.MaxCategoryDepth-1 {
		return shared.NewDomainError("MAX_DEPTH_EXCEEDED", "Category tree is deeper than allowed")
	}

	return descendants.Session(&gorm.Session{}).Updates(map[string]any{
		"path":  gorm.Expr("? || SUBSTR(path, ?)", newPath, len(oldPath)+1),
		"level": gorm.Expr("level + ?", levelDelta),
	}).Error
}

// Count counts categories matching the filter
func (r *GormCategoryRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.CategoryModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormCategoryRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, CategorySortFields, "path")
	return query.Order(sortField + " " + ValidateSortOrder(orderDirOrAsc(filter.OrderDir)))
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormCategoryRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(filter.Search))
	}

	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "parent_id":
			if value == nil {
				query = query.Where("parent_id IS NULL")
			} else {
				query = query.Where("parent_id = ?", value)
			}
		case "level":
			query = query.Where("level = ?", value)
		case "linked":
			if linked, ok := value.(bool); ok && linked {
				query = query.Where("source_id IS NOT NULL")
			} else if ok {
				query = query.Where("source_id IS NULL")
			}
		}
	}

	return query
}

// GormPublicCategoryRepository implements PublicCategoryRepository using GORM
type GormPublicCategoryRepository struct {
	db *gorm.DB
}

// NewGormPublicCategoryRepository creates a new GormPublicCategoryRepository
func NewGormPublicCategoryRepository(db *gorm.DB) *GormPublicCategoryRepository {
	return &GormPublicCategoryRepository{db: db}
}

// FindBySourceID finds the storefront category mapped to a remote source id
func (r *GormPublicCategoryRepository) FindBySourceID(ctx context.Context, sourceID int64) (*catalog.PublicCategory, error) {
	var model models.PublicCategoryModel
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindUnlinkedByName finds a storefront category without a source mapping by name
func (r *GormPublicCategoryRepository) FindUnlinkedByName(ctx context.Context, name string) (*catalog.PublicCategory, error) {
	var model models.PublicCategoryModel
	if err := r.db.WithContext(ctx).
		Where("source_id IS NULL AND LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a storefront category
func (r *GormPublicCategoryRepository) Save(ctx context.Context, category *catalog.PublicCategory) error {
	model := models.PublicCategoryModelFromDomain(category)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true, Columns: []clause.Column{{Name: "id"}}}).
		Create(model).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

func orderDirOrAsc(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return "ASC"
	}
	return dir
}

// Ensure the repositories implement their domain interfaces
var (
	_ catalog.CategoryRepository       = (*GormCategoryRepository)(nil)
	_ catalog.PublicCategoryRepository = (*GormPublicCategoryRepository)(nil)
)

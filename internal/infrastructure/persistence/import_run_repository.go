package persistence

import (
	"context"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormImportRunRepository implements ImportRunRepository using GORM
type GormImportRunRepository struct {
	db *gorm.DB
}

// NewGormImportRunRepository creates a new GormImportRunRepository
func NewGormImportRunRepository(db *gorm.DB) *GormImportRunRepository {
	return &GormImportRunRepository{db: db}
}

// FindByID finds an import run by ID
func (r *GormImportRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.ImportRun, error) {
	var model models.ImportRunModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindAll returns import runs, newest first, with pagination and filtering
func (r *GormImportRunRepository) FindAll(
	ctx context.Context,
	filter bulk.ImportRunFilter,
	page, pageSize int,
) (*bulk.ImportRunListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportRunModel{})
	query = r.applyFilters(query, filter)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if page > 0 && pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var runModels []models.ImportRunModel
	if err := query.Order("started_at DESC, created_at DESC").Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*bulk.ImportRun, len(runModels))
	for i := range runModels {
		runs[i] = runModels[i].ToDomain()
	}

	return &bulk.ImportRunListResult{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// FindRunning finds runs that never reached a terminal state (for recovery after restart)
func (r *GormImportRunRepository) FindRunning(ctx context.Context) ([]*bulk.ImportRun, error) {
	var runModels []models.ImportRunModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", bulk.RunStatusRunning).
		Order("started_at ASC").
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*bulk.ImportRun, len(runModels))
	for i := range runModels {
		runs[i] = runModels[i].ToDomain()
	}
	return runs, nil
}

// Save saves an import run (create or update)
func (r *GormImportRunRepository) Save(ctx context.Context, run *bulk.ImportRun) error {
	model, err := models.ImportRunModelFromDomain(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// applyFilters applies filter options to the query
func (r *GormImportRunRepository) applyFilters(query *gorm.DB, filter bulk.ImportRunFilter) *gorm.DB {
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.StartedFrom != nil {
		query = query.Where("started_at >= ?", *filter.StartedFrom)
	}
	if filter.StartedTo != nil {
		query = query.Where("started_at <= ?", *filter.StartedTo)
	}
	return query
}

// Compile-time interface compliance check
var _ bulk.ImportRunRepository = (*GormImportRunRepository)(nil)

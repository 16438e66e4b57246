package models

import (
	"time"

	"github.com/erp/importer/internal/domain/bulk"
)

// ImportRunModel is the persistence model for the ImportRun domain entity.
type ImportRunModel struct {
	AggregateModel
	Kind           bulk.EntityKind `gorm:"type:varchar(20);not null;index"`
	Status         bulk.RunStatus  `gorm:"type:varchar(32);not null;index"`
	RunLimit       int             `gorm:"column:run_limit;not null;default:0"`
	RunOffset      int             `gorm:"column:run_offset;not null;default:0"`
	Listed         int             `gorm:"not null;default:0"`
	Processed      int             `gorm:"not null;default:0"`
	Created        int             `gorm:"column:created_count;not null;default:0"`
	Updated        int             `gorm:"column:updated_count;not null;default:0"`
	Skipped        int             `gorm:"column:skipped_count;not null;default:0"`
	Errors         int             `gorm:"column:error_count;not null;default:0"`
	Warnings       int             `gorm:"column:warning_count;not null;default:0"`
	DroppedSamples int             `gorm:"not null;default:0"`
	ClassCounts    string          `gorm:"type:text;not null;default:'{}'"`
	Samples        string          `gorm:"type:text;not null;default:'[]'"`
	Reason         string          `gorm:"type:text"`
	StartedAt      time.Time       `gorm:"not null;index"`
	FinishedAt     *time.Time
}

// TableName returns the table name for GORM
func (ImportRunModel) TableName() string {
	return "import_runs"
}

// ToDomain converts the persistence model to a domain ImportRun.
func (m *ImportRunModel) ToDomain() *bulk.ImportRun {
	run := &bulk.ImportRun{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		RunSummary: bulk.RunSummary{
			Kind:           m.Kind,
			Status:         m.Status,
			Listed:         m.Listed,
			Processed:      m.Processed,
			Created:        m.Created,
			Updated:        m.Updated,
			Skipped:        m.Skipped,
			Errors:         m.Errors,
			Warnings:       m.Warnings,
			DroppedSamples: m.DroppedSamples,
			Reason:         m.Reason,
			StartedAt:      m.StartedAt,
		},
		Limit:       m.RunLimit,
		Offset:      m.RunOffset,
		CompletedAt: m.FinishedAt,
	}
	if m.FinishedAt != nil {
		run.FinishedAt = *m.FinishedAt
	}
	if m.ClassCounts != "" {
		_ = run.SetClassCountsFromJSON(m.ClassCounts)
	}
	if m.Samples != "" {
		_ = run.SetSamplesFromJSON(m.Samples)
	}
	return run
}

// ImportRunModelFromDomain creates a persistence model from a domain ImportRun.
func ImportRunModelFromDomain(r *bulk.ImportRun) (*ImportRunModel, error) {
	classCounts, err := r.ClassCountsJSON()
	if err != nil {
		return nil, err
	}
	samples, err := r.SamplesJSON()
	if err != nil {
		return nil, err
	}
	m := &ImportRunModel{
		Kind:           r.Kind,
		Status:         r.Status,
		RunLimit:       r.Limit,
		RunOffset:      r.Offset,
		Listed:         r.Listed,
		Processed:      r.Processed,
		Created:        r.Created,
		Updated:        r.Updated,
		Skipped:        r.Skipped,
		Errors:         r.Errors,
		Warnings:       r.Warnings,
		DroppedSamples: r.DroppedSamples,
		ClassCounts:    classCounts,
		Samples:        samples,
		Reason:         r.Reason,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.CompletedAt,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m, nil
}

// AllModels lists every model, in dependency order, for AutoMigrate in tests and sqlite mode.
func AllModels() []any {
	return []any{
		&CategoryModel{},
		&PublicCategoryModel{},
		&ProductModel{},
		&ProductPublicCategoryModel{},
		&StockLevelModel{},
		&CustomerModel{},
		&CustomerAddressModel{},
		&ImportRunModel{},
	}
}

package persistence

import (
	"context"
	"fmt"
	"regexp"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var relationNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// GormRelationProbe answers existence queries against tables chosen at runtime.
// Relation names are validated before they reach SQL.
type GormRelationProbe struct {
	db *gorm.DB
}

// NewGormRelationProbe creates a new GormRelationProbe
func NewGormRelationProbe(db *gorm.DB) *GormRelationProbe {
	return &GormRelationProbe{db: db}
}

// HasRelation reports whether the table exists
func (p *GormRelationProbe) HasRelation(ctx context.Context, relation string) (bool, error) {
	if err := validateRelation(relation); err != nil {
		return false, err
	}
	return p.db.WithContext(ctx).Migrator().HasTable(relation), nil
}

// ResolveSourceIDs maps source ids to target ids through the relation's source_id column.
// A relation without that column resolves nothing.
func (p *GormRelationProbe) ResolveSourceIDs(ctx context.Context, relation string, sourceIDs []int64) (map[int64]uuid.UUID, error) {
	result := make(map[int64]uuid.UUID, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return result, nil
	}
	if err := validateRelation(relation); err != nil {
		return nil, err
	}
	db := p.db.WithContext(ctx)
	if !db.Migrator().HasColumn(relation, "source_id") {
		return result, nil
	}

	var rows []struct {
		ID       uuid.UUID
		SourceID int64
	}
	if err := db.Table(relation).Select("id, source_id").Where("source_id IN ?", sourceIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.SourceID] = row.ID
	}
	return result, nil
}

// ExistingIDs returns which of ids have a row in the relation
func (p *GormRelationProbe) ExistingIDs(ctx context.Context, relation string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	if err := validateRelation(relation); err != nil {
		return nil, err
	}

	var found []uuid.UUID
	if err := p.db.WithContext(ctx).Table(relation).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		result[id] = true
	}
	return result, nil
}

func validateRelation(relation string) error {
	if !relationNameRegex.MatchString(relation) {
		return fmt.Errorf("invalid relation name %q", relation)
	}
	return nil
}

var _ importapp.RelationProbe = (*GormRelationProbe)(nil)

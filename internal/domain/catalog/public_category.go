package catalog

import (
	"strings"
	"time"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// PublicCategory is a node of the storefront taxonomy.
// Its ids live in a different space from Category ids and must never be mixed with them.
type PublicCategory struct {
	shared.BaseAggregateRoot
	SourceID *int64
	Name     string
	ParentID *uuid.UUID
}

// NewPublicCategory creates a storefront category, optionally under parent
func NewPublicCategory(name string, sourceID *int64, parent *PublicCategory) (*PublicCategory, error) {
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}
	pc := &PublicCategory{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SourceID:          copySourceID(sourceID),
		Name:              strings.TrimSpace(name),
	}
	if parent != nil {
		pc.ParentID = &parent.ID
	}
	return pc, nil
}

// Rename changes the name and reports whether anything changed
func (p *PublicCategory) Rename(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return false, err
	}
	if p.Name == name {
		return false, nil
	}
	p.Name = name
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return true, nil
}

// SetParent changes the parent and reports whether it changed
func (p *PublicCategory) SetParent(parentID *uuid.UUID) bool {
	if equalUUIDPtr(p.ParentID, parentID) {
		return false
	}
	p.ParentID = parentID
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return true
}

// LinkSource attaches a remote source id to a storefront category matched by name
func (p *PublicCategory) LinkSource(sourceID int64) error {
	if p.SourceID != nil && *p.SourceID != sourceID {
		return shared.NewDomainError("SOURCE_CONFLICT", "Public category is already linked to another source record")
	}
	p.SourceID = &sourceID
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

package catalog

import (
	"strings"
	"time"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxCategoryDepth bounds the parent chain of a category node.
// Chains longer than this are treated as cyclic or malformed.
const MaxCategoryDepth = 20

// CategoryStatus represents the status of a category
type CategoryStatus string

const (
	CategoryStatusActive   CategoryStatus = "active"
	CategoryStatusInactive CategoryStatus = "inactive"
)

// Category represents a node of the internal product category tree.
// SourceID is the mapping key to the remote catalog; it is unique when set.
type Category struct {
	shared.BaseAggregateRoot
	SourceID *int64
	Name     string
	ParentID *uuid.UUID
	Path     string // Materialized path of ids, root first
	Level    int
	Status   CategoryStatus
}

// NewCategory creates a new root category
func NewCategory(name string, sourceID *int64) (*Category, error) {
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}

	category := &Category{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SourceID:          copySourceID(sourceID),
		Name:              strings.TrimSpace(name),
		Status:            CategoryStatusActive,
	}
	category.Path = category.ID.String()

	return category, nil
}

// NewChildCategory creates a new category under parent
func NewChildCategory(name string, sourceID *int64, parent *Category) (*Category, error) {
	if parent == nil {
		return nil, shared.NewDomainError("INVALID_PARENT", "Parent category is required")
	}
	if parent.Level >= MaxCategoryDepth-1 {
		return nil, shared.NewDomainError("MAX_DEPTH_EXCEEDED", "Category tree is deeper than allowed")
	}

	category, err := NewCategory(name, sourceID)
	if err != nil {
		return nil, err
	}
	category.ParentID = &parent.ID
	category.Level = parent.Level + 1
	category.Path = parent.Path + "/" + category.ID.String()

	return category, nil
}

// Rename changes the category name and reports whether anything changed
func (c *Category) Rename(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return false, err
	}
	if c.Name == name {
		return false, nil
	}

	c.Name = name
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return true, nil
}

// LinkSource attaches a remote source id to a category matched by name
func (c *Category) LinkSource(sourceID int64) error {
	if c.SourceID != nil && *c.SourceID != sourceID {
		return shared.NewDomainError("SOURCE_CONFLICT", "Category is already linked to another source record")
	}
	c.SourceID = &sourceID
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return nil
}

// MoveUnder re-parents the category, or makes it a root when parent is nil.
// It reports whether the parent changed. The caller rewrites the stored subtree
// with CategoryRepository.MoveSubtree.
func (c *Category) MoveUnder(parent *Category) (bool, error) {
	if parent == nil {
		if c.ParentID == nil {
			return false, nil
		}
		c.ParentID = nil
		c.Level = 0
		c.Path = c.ID.String()
		c.UpdatedAt = time.Now()
		c.IncrementVersion()
		return true, nil
	}
	if parent.ID == c.ID || c.IsAncestorOf(parent) {
		return false, shared.NewDomainError("INVALID_PARENT", "Category cannot be moved under itself or a descendant")
	}
	if parent.Level >= MaxCategoryDepth-1 {
		return false, shared.NewDomainError("MAX_DEPTH_EXCEEDED", "Category tree is deeper than allowed")
	}
	if c.ParentID != nil && *c.ParentID == parent.ID {
		return false, nil
	}
	c.ParentID = &parent.ID
	c.Level = parent.Level + 1
	c.Path = parent.Path + "/" + c.ID.String()
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return true, nil
}

// IsRoot returns true if this is a root category
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// GetAncestorIDs returns the IDs of all ancestor categories
func (c *Category) GetAncestorIDs() []uuid.UUID {
	if c.Path == "" {
		return nil
	}

	parts := strings.Split(c.Path, "/")
	if len(parts) <= 1 {
		return nil
	}

	ancestors := make([]uuid.UUID, 0, len(parts)-1)
	for i := 0; i < len(parts)-1; i++ {
		if id, err := uuid.Parse(parts[i]); err == nil {
			ancestors = append(ancestors, id)
		}
	}

	return ancestors
}

// IsAncestorOf returns true if this category is an ancestor of the given category
func (c *Category) IsAncestorOf(other *Category) bool {
	if other == nil || other.Path == "" {
		return false
	}
	return strings.HasPrefix(other.Path, c.Path+"/")
}

func validateCategoryName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Category name cannot be empty")
	}
	if len(name) > 128 {
		return shared.NewDomainError("INVALID_NAME", "Category name cannot exceed 128 characters")
	}
	return nil
}

func copySourceID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

package models

import (
	"encoding/json"

	"github.com/erp/importer/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryModel is the persistence model for the internal Category taxonomy.
type CategoryModel struct {
	AggregateModel
	SourceID *int64                 `gorm:"uniqueIndex:idx_categories_source_id"`
	Name     string                 `gorm:"type:varchar(128);not null;index"`
	ParentID *uuid.UUID             `gorm:"type:uuid;index"`
	Path     string                 `gorm:"type:varchar(2000);not null"`
	Level    int                    `gorm:"not null;default:0"`
	Status   catalog.CategoryStatus `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (CategoryModel) TableName() string {
	return "categories"
}

// ToDomain converts the persistence model to a domain Category.
func (m *CategoryModel) ToDomain() *catalog.Category {
	return &catalog.Category{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SourceID:          m.SourceID,
		Name:              m.Name,
		ParentID:          m.ParentID,
		Path:              m.Path,
		Level:             m.Level,
		Status:            m.Status,
	}
}

// CategoryModelFromDomain creates a persistence model from a domain Category.
func CategoryModelFromDomain(c *catalog.Category) *CategoryModel {
	m := &CategoryModel{
		SourceID: c.SourceID,
		Name:     c.Name,
		ParentID: c.ParentID,
		Path:     c.Path,
		Level:    c.Level,
		Status:   c.Status,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// PublicCategoryModel is the persistence model for the public (website) taxonomy.
type PublicCategoryModel struct {
	AggregateModel
	SourceID *int64     `gorm:"uniqueIndex:idx_product_public_categories_source_id"`
	Name     string     `gorm:"type:varchar(128);not null;index"`
	ParentID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (PublicCategoryModel) TableName() string {
	return "product_public_categories"
}

// ToDomain converts the persistence model to a domain PublicCategory.
func (m *PublicCategoryModel) ToDomain() *catalog.PublicCategory {
	return &catalog.PublicCategory{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SourceID:          m.SourceID,
		Name:              m.Name,
		ParentID:          m.ParentID,
	}
}

// PublicCategoryModelFromDomain creates a persistence model from a domain PublicCategory.
func PublicCategoryModelFromDomain(c *catalog.PublicCategory) *PublicCategoryModel {
	m := &PublicCategoryModel{
		SourceID: c.SourceID,
		Name:     c.Name,
		ParentID: c.ParentID,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// ProductPublicCategoryModel links a product to one public category.
type ProductPublicCategoryModel struct {
	ProductID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PublicCategoryID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

// TableName returns the table name for GORM
func (ProductPublicCategoryModel) TableName() string {
	return "product_public_category_rel"
}

// ProductModel is the persistence model for the Product domain entity.
type ProductModel struct {
	AggregateModel
	SourceID         *int64              `gorm:"uniqueIndex:idx_products_source_id"`
	Name             string              `gorm:"type:varchar(255);not null;index"`
	Reference        string              `gorm:"type:varchar(64);index"`
	EAN13            string              `gorm:"column:ean13;type:varchar(13)"`
	Description      string              `gorm:"type:text"`
	ShortDescription string              `gorm:"type:text"`
	Price            decimal.Decimal     `gorm:"type:decimal(18,6);not null;default:0"`
	WholesalePrice   decimal.Decimal     `gorm:"type:decimal(18,6);not null;default:0"`
	Weight           decimal.Decimal     `gorm:"type:decimal(18,6);not null;default:0"`
	Type             catalog.ProductType `gorm:"type:varchar(20);not null;default:'goods'"`
	Active           bool                `gorm:"not null"`
	CategoryID       *uuid.UUID          `gorm:"type:uuid;index"`
	StockOnHand      decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	ImageRefs        string              `gorm:"type:text;not null;default:'[]'"`

	PublicCategories []ProductPublicCategoryModel `gorm:"foreignKey:ProductID"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product.
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SourceID:          m.SourceID,
		Name:              m.Name,
		Reference:         m.Reference,
		EAN13:             m.EAN13,
		Description:       m.Description,
		ShortDescription:  m.ShortDescription,
		Price:             m.Price,
		WholesalePrice:    m.WholesalePrice,
		Weight:            m.Weight,
		Type:              m.Type,
		Active:            m.Active,
		CategoryID:        m.CategoryID,
		StockOnHand:       m.StockOnHand,
	}
	if len(m.PublicCategories) > 0 {
		p.PublicCategoryIDs = make([]uuid.UUID, len(m.PublicCategories))
		for i, link := range m.PublicCategories {
			p.PublicCategoryIDs[i] = link.PublicCategoryID
		}
	}
	if m.ImageRefs != "" {
		_ = json.Unmarshal([]byte(m.ImageRefs), &p.ImageRefs)
	}
	return p
}

// ProductModelFromDomain creates a persistence model from a domain Product.
// Public category links are written separately by the repository.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{
		SourceID:         p.SourceID,
		Name:             p.Name,
		Reference:        p.Reference,
		EAN13:            p.EAN13,
		Description:      p.Description,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		WholesalePrice:   p.WholesalePrice,
		Weight:           p.Weight,
		Type:             p.Type,
		Active:           p.Active,
		CategoryID:       p.CategoryID,
		StockOnHand:      p.StockOnHand,
		ImageRefs:        "[]",
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	if len(p.ImageRefs) > 0 {
		if data, err := json.Marshal(p.ImageRefs); err == nil {
			m.ImageRefs = string(data)
		}
	}
	return m
}

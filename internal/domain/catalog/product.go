package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductType distinguishes stocked goods from services
type ProductType string

const (
	ProductTypeGoods   ProductType = "goods"
	ProductTypeService ProductType = "service"
)

// Product is the target record for an imported catalog item.
// CategoryID points at the internal tree; PublicCategoryIDs point at the storefront taxonomy.
type Product struct {
	shared.BaseAggregateRoot
	SourceID          *int64
	Name              string
	Reference         string
	EAN13             string
	Description       string
	ShortDescription  string
	Price             decimal.Decimal
	WholesalePrice    decimal.Decimal
	Weight            decimal.Decimal
	Type              ProductType
	Active            bool
	CategoryID        *uuid.UUID
	PublicCategoryIDs []uuid.UUID
	StockOnHand       decimal.Decimal
	ImageRefs         []string
}

// ProductDetails carries the mutable attributes mapped from a source record
type ProductDetails struct {
	Name             string
	Reference        string
	EAN13            string
	Description      string
	ShortDescription string
	Price            decimal.Decimal
	WholesalePrice   decimal.Decimal
	Weight           decimal.Decimal
	Type             ProductType
	Active           bool
}

// NewProduct creates a product from mapped details
func NewProduct(sourceID *int64, details ProductDetails) (*Product, error) {
	if err := validateProductDetails(details); err != nil {
		return nil, err
	}
	p := &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SourceID:          copySourceID(sourceID),
		StockOnHand:       decimal.Zero,
	}
	p.assign(details)
	return p, nil
}

// Apply overwrites the mapped attributes and reports whether anything changed
func (p *Product) Apply(details ProductDetails) (bool, error) {
	if err := validateProductDetails(details); err != nil {
		return false, err
	}
	if p.sameDetails(details) {
		return false, nil
	}
	p.assign(details)
	p.touch()
	return true, nil
}

// LinkSource attaches a remote source id to a product matched by reference
func (p *Product) LinkSource(sourceID int64) error {
	if p.SourceID != nil && *p.SourceID != sourceID {
		return shared.NewDomainError("SOURCE_CONFLICT", "Product is already linked to another source record")
	}
	p.SourceID = &sourceID
	p.touch()
	return nil
}

// SetCategory sets the primary category and reports whether it changed
func (p *Product) SetCategory(categoryID *uuid.UUID) bool {
	if equalUUIDPtr(p.CategoryID, categoryID) {
		return false
	}
	p.CategoryID = categoryID
	p.touch()
	return true
}

// SetPublicCategories replaces the storefront category set.
// Callers are expected to pass ids already checked against the storefront relation.
func (p *Product) SetPublicCategories(ids []uuid.UUID) bool {
	next := dedupeUUIDs(ids)
	if slices.Equal(dedupeUUIDs(p.PublicCategoryIDs), next) {
		return false
	}
	p.PublicCategoryIDs = next
	p.touch()
	return true
}

// SetStock sets the on-hand quantity and reports whether it changed
func (p *Product) SetStock(quantity decimal.Decimal) (bool, error) {
	if quantity.IsNegative() {
		return false, shared.NewDomainError("INVALID_QUANTITY", "Stock quantity cannot be negative")
	}
	if p.StockOnHand.Equal(quantity) {
		return false, nil
	}
	p.StockOnHand = quantity
	p.touch()
	return true, nil
}

// SetImageRefs replaces the image references and reports whether they changed
func (p *Product) SetImageRefs(refs []string) bool {
	if slices.Equal(p.ImageRefs, refs) {
		return false
	}
	p.ImageRefs = slices.Clone(refs)
	p.touch()
	return true
}

// IsService returns true for products that carry no stock
func (p *Product) IsService() bool {
	return p.Type == ProductTypeService
}

func (p *Product) assign(d ProductDetails) {
	p.Name = strings.TrimSpace(d.Name)
	p.Reference = strings.TrimSpace(d.Reference)
	p.EAN13 = strings.TrimSpace(d.EAN13)
	p.Description = d.Description
	p.ShortDescription = d.ShortDescription
	p.Price = d.Price
	p.WholesalePrice = d.WholesalePrice
	p.Weight = d.Weight
	p.Type = d.Type
	if p.Type == "" {
		p.Type = ProductTypeGoods
	}
	p.Active = d.Active
}

func (p *Product) sameDetails(d ProductDetails) bool {
	typ := d.Type
	if typ == "" {
		typ = ProductTypeGoods
	}
	return p.Name == strings.TrimSpace(d.Name) &&
		p.Reference == strings.TrimSpace(d.Reference) &&
		p.EAN13 == strings.TrimSpace(d.EAN13) &&
		p.Description == d.Description &&
		p.ShortDescription == d.ShortDescription &&
		p.Price.Equal(d.Price) &&
		p.WholesalePrice.Equal(d.WholesalePrice) &&
		p.Weight.Equal(d.Weight) &&
		p.Type == typ &&
		p.Active == d.Active
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

func validateProductDetails(d ProductDetails) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 255 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 255 characters")
	}
	if d.Price.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Product price cannot be negative")
	}
	return nil
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func dedupeUUIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

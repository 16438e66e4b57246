package importapp

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/erp/importer/internal/domain/integration"
)

// FakeSource is an in-memory CatalogSource. Listing order follows the order records were added.
// It is exported so the external end-to-end tests can share it.
type FakeSource struct {
	mu sync.Mutex

	order      map[integration.Resource][]int64
	Categories map[int64]*integration.SourceCategory
	Products   map[int64]*integration.SourceProduct
	Stocks     map[int64]*integration.SourceStock
	Customers  map[int64]*integration.SourceCustomer
	Addresses  map[int64][]integration.SourceAddress
	Countries  map[int64]string
	States     map[int64]string
	Images     map[int64]*integration.SourceImage

	// Errors fails detail fetches of a resource id; ListErr fails every listing call
	Errors  map[integration.Resource]map[int64]error
	ListErr error

	Calls map[string]int
}

// NewFakeSource creates an empty FakeSource
func NewFakeSource() *FakeSource {
	return &FakeSource{
		order:      make(map[integration.Resource][]int64),
		Categories: make(map[int64]*integration.SourceCategory),
		Products:   make(map[int64]*integration.SourceProduct),
		Stocks:     make(map[int64]*integration.SourceStock),
		Customers:  make(map[int64]*integration.SourceCustomer),
		Addresses:  make(map[int64][]integration.SourceAddress),
		Countries:  make(map[int64]string),
		States:     make(map[int64]string),
		Images:     make(map[int64]*integration.SourceImage),
		Errors:     make(map[integration.Resource]map[int64]error),
		Calls:      make(map[string]int),
	}
}

// AddCategory registers a category; parent 0 means none
func (f *FakeSource) AddCategory(id int64, name string, parent int64) *FakeSource {
	c := &integration.SourceCategory{ID: id, Name: name, Active: true}
	if parent != 0 {
		c.ParentID = &parent
	}
	f.Categories[id] = c
	f.order[integration.ResourceCategories] = append(f.order[integration.ResourceCategories], id)
	return f
}

// AddProduct registers a product
func (f *FakeSource) AddProduct(p *integration.SourceProduct) *FakeSource {
	f.Products[p.ID] = p
	f.order[integration.ResourceProducts] = append(f.order[integration.ResourceProducts], p.ID)
	return f
}

// AddStock registers a stock row
func (f *FakeSource) AddStock(s *integration.SourceStock) *FakeSource {
	f.Stocks[s.ID] = s
	f.order[integration.ResourceStockAvailables] = append(f.order[integration.ResourceStockAvailables], s.ID)
	return f
}

// AddCustomer registers a customer with its addresses
func (f *FakeSource) AddCustomer(c *integration.SourceCustomer, addresses ...integration.SourceAddress) *FakeSource {
	f.Customers[c.ID] = c
	f.Addresses[c.ID] = addresses
	f.order[integration.ResourceCustomers] = append(f.order[integration.ResourceCustomers], c.ID)
	return f
}

// Fail makes detail fetches of id in resource return err
func (f *FakeSource) Fail(resource integration.Resource, id int64, err error) *FakeSource {
	if f.Errors[resource] == nil {
		f.Errors[resource] = make(map[int64]error)
	}
	f.Errors[resource][id] = err
	return f
}

// CallCount returns how often a method was called
func (f *FakeSource) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *FakeSource) record(method string) {
	f.mu.Lock()
	f.Calls[method]++
	f.mu.Unlock()
}

func (f *FakeSource) failure(resource integration.Resource, id int64) error {
	if errs := f.Errors[resource]; errs != nil {
		return errs[id]
	}
	return nil
}

func notFound(resource integration.Resource, id int64) error {
	return fmt.Errorf("%w: %s %d", integration.ErrSourceNotFound, resource, id)
}

func (f *FakeSource) ListIDs(ctx context.Context, resource integration.Resource, opts integration.ListOptions) ([]int64, error) {
	f.record("ListIDs")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	ids := f.order[resource]
	if opts.Offset >= len(ids) {
		return []int64{}, nil
	}
	end := len(ids)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return slices.Clone(ids[opts.Offset:end]), nil
}

func (f *FakeSource) Category(ctx context.Context, id int64) (*integration.SourceCategory, error) {
	f.record("Category")
	if err := f.failure(integration.ResourceCategories, id); err != nil {
		return nil, err
	}
	c, ok := f.Categories[id]
	if !ok {
		return nil, notFound(integration.ResourceCategories, id)
	}
	cp := *c
	return &cp, nil
}

func (f *FakeSource) Product(ctx context.Context, id int64) (*integration.SourceProduct, error) {
	f.record("Product")
	if err := f.failure(integration.ResourceProducts, id); err != nil {
		return nil, err
	}
	p, ok := f.Products[id]
	if !ok {
		return nil, notFound(integration.ResourceProducts, id)
	}
	cp := *p
	return &cp, nil
}

func (f *FakeSource) StockAvailable(ctx context.Context, id int64) (*integration.SourceStock, error) {
	f.record("StockAvailable")
	if err := f.failure(integration.ResourceStockAvailables, id); err != nil {
		return nil, err
	}
	s, ok := f.Stocks[id]
	if !ok {
		return nil, notFound(integration.ResourceStockAvailables, id)
	}
	cp := *s
	return &cp, nil
}

func (f *FakeSource) StockForProduct(ctx context.Context, productID int64) ([]integration.SourceStock, error) {
	f.record("StockForProduct")
	var rows []integration.SourceStock
	for _, id := range f.order[integration.ResourceStockAvailables] {
		if s := f.Stocks[id]; s.ProductID == productID {
			rows = append(rows, *s)
		}
	}
	return rows, nil
}

func (f *FakeSource) Customer(ctx context.Context, id int64) (*integration.SourceCustomer, error) {
	f.record("Customer")
	if err := f.failure(integration.ResourceCustomers, id); err != nil {
		return nil, err
	}
	c, ok := f.Customers[id]
	if !ok {
		return nil, notFound(integration.ResourceCustomers, id)
	}
	cp := *c
	return &cp, nil
}

func (f *FakeSource) AddressesForCustomer(ctx context.Context, customerID int64) ([]integration.SourceAddress, error) {
	f.record("AddressesForCustomer")
	return slices.Clone(f.Addresses[customerID]), nil
}

func (f *FakeSource) CountryISO(ctx context.Context, countryID int64) (string, error) {
	f.record("CountryISO")
	iso, ok := f.Countries[countryID]
	if !ok {
		return "", notFound(integration.ResourceCountries, countryID)
	}
	return iso, nil
}

func (f *FakeSource) StateName(ctx context.Context, stateID int64) (string, error) {
	f.record("StateName")
	name, ok := f.States[stateID]
	if !ok {
		return "", notFound(integration.ResourceStates, stateID)
	}
	return name, nil
}

func (f *FakeSource) Image(ctx context.Context, productID, imageID int64) (*integration.SourceImage, error) {
	f.record("Image")
	img, ok := f.Images[imageID]
	if !ok || img.ProductID != productID {
		return nil, notFound("images", imageID)
	}
	return img, nil
}

func (f *FakeSource) CheckConnection(ctx context.Context) (*integration.ConnectionReport, error) {
	f.record("CheckConnection")
	return &integration.ConnectionReport{OK: true, BaseURL: "https://shop.test/api"}, nil
}

var _ integration.CatalogSource = (*FakeSource)(nil)

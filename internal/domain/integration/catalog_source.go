package integration

import (
	"context"
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// CatalogSource Errors
// ---------------------------------------------------------------------------

var (
	ErrSourceNotConfigured = errors.New("integration: source not configured")
	ErrSourceUnavailable   = errors.New("integration: source temporarily unavailable")
	ErrSourceTimeout       = errors.New("integration: source request timed out")
	ErrSourceConnection    = errors.New("integration: source connection failed")
	ErrSourceHTTP          = errors.New("integration: source request failed")
	ErrSourceAuthFailed    = errors.New("integration: source authentication failed")
	ErrSourceNotFound      = errors.New("integration: source record not found")
	ErrSourceMalformed     = errors.New("integration: malformed source response")
)

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// Resource names a listable collection in the source API
type Resource string

const (
	ResourceCategories      Resource = "categories"
	ResourceProducts        Resource = "products"
	ResourceStockAvailables Resource = "stock_availables"
	ResourceCustomers       Resource = "customers"
	ResourceAddresses       Resource = "addresses"
	ResourceCountries       Resource = "countries"
	ResourceStates          Resource = "states"
	ResourceLanguages       Resource = "languages"
)

// ListOptions selects one page of a listing
type ListOptions struct {
	Filters map[string]string
	Offset  int
	Limit   int
}

// ---------------------------------------------------------------------------
// Source records
// ---------------------------------------------------------------------------

// SourceCategory is a category as reported by the source.
// ParentID is nil when the source reports no parent (id 0).
type SourceCategory struct {
	ID       int64
	Name     string
	ParentID *int64
	Active   bool
}

// SourceProduct is a product as reported by the source.
// Numeric fields are kept raw; mapping decides how to treat unparsable values.
type SourceProduct struct {
	ID                int64
	Name              string
	Reference         string
	EAN13             string
	Description       string
	ShortDescription  string
	Price             string
	WholesalePrice    string
	Weight            string
	Type              string
	Active            bool
	DefaultCategoryID *int64
	CategoryIDs       []int64
	ImageIDs          []int64
	Quantity          *string
}

// SourceStock is one stock_available row.
// ProductAttributeID is 0 for the product-level row.
type SourceStock struct {
	ID                 int64
	ProductID          int64
	ProductAttributeID int64
	Quantity           string
}

// SourceCustomer is a customer as reported by the source
type SourceCustomer struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Active    bool
}

// SourceAddress is a customer address as reported by the source
type SourceAddress struct {
	ID          int64
	CustomerID  int64
	Alias       string
	Company     string
	FirstName   string
	LastName    string
	Address1    string
	Address2    string
	Postcode    string
	City        string
	Phone       string
	PhoneMobile string
	CountryID   int64
	StateID     int64
}

// SourceImage is a downloaded product image
type SourceImage struct {
	ProductID   int64
	ImageID     int64
	ContentType string
	Data        []byte
}

// ---------------------------------------------------------------------------
// Connectivity
// ---------------------------------------------------------------------------

// ConnectionStep is the result of one connectivity probe
type ConnectionStep struct {
	Name       string        `json:"name"`
	OK         bool          `json:"ok"`
	StatusCode int           `json:"status_code,omitempty"`
	Detail     string        `json:"detail"`
	Duration   time.Duration `json:"duration"`
}

// ConnectionReport is the diagnostic result of a connectivity check
type ConnectionReport struct {
	OK        bool             `json:"ok"`
	BaseURL   string           `json:"base_url"`
	MaskedKey string           `json:"masked_key"`
	Steps     []ConnectionStep `json:"steps"`
	Hint      string           `json:"hint,omitempty"`
}

// ---------------------------------------------------------------------------
// CatalogSource port
// ---------------------------------------------------------------------------

// CatalogSource reads catalog data from the remote system.
// Implementations own retry, timeout and pacing policy; every error they return wraps
// one of the ErrSource* sentinels.
type CatalogSource interface {
	// ListIDs returns the ids of one page of a resource listing
	ListIDs(ctx context.Context, resource Resource, opts ListOptions) ([]int64, error)

	// Category fetches one category; ErrSourceNotFound when it does not exist
	Category(ctx context.Context, id int64) (*SourceCategory, error)

	// Product fetches one product
	Product(ctx context.Context, id int64) (*SourceProduct, error)

	// StockAvailable fetches one stock row
	StockAvailable(ctx context.Context, id int64) (*SourceStock, error)

	// StockForProduct fetches the stock rows of a product
	StockForProduct(ctx context.Context, productID int64) ([]SourceStock, error)

	// Customer fetches one customer
	Customer(ctx context.Context, id int64) (*SourceCustomer, error)

	// AddressesForCustomer fetches all addresses of a customer
	AddressesForCustomer(ctx context.Context, customerID int64) ([]SourceAddress, error)

	// CountryISO returns the ISO code of a country id
	CountryISO(ctx context.Context, countryID int64) (string, error)

	// StateName returns the name of a country state id
	StateName(ctx context.Context, stateID int64) (string, error)

	// Image downloads one product image
	Image(ctx context.Context, productID, imageID int64) (*SourceImage, error)

	// CheckConnection runs the connectivity probes, cheapest first
	CheckConnection(ctx context.Context) (*ConnectionReport, error)
}

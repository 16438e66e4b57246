package partner

import (
	"regexp"
	"strings"
	"time"

	"github.com/erp/importer/internal/domain/shared"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Customer represents an imported storefront customer.
// Email is stored lower-cased and doubles as the fallback match key.
type Customer struct {
	shared.BaseAggregateRoot
	SourceID  *int64
	Email     string
	FirstName string
	LastName  string
	Name      string
	Active    bool
	Addresses []Address
}

// CustomerDetails carries the mutable attributes mapped from a source record
type CustomerDetails struct {
	Email     string
	FirstName string
	LastName  string
	Active    bool
}

// NewCustomer creates a customer from mapped details
func NewCustomer(sourceID *int64, details CustomerDetails) (*Customer, error) {
	if err := validateEmail(details.Email); err != nil {
		return nil, err
	}
	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
	}
	if sourceID != nil {
		id := *sourceID
		c.SourceID = &id
	}
	c.assign(details)
	return c, nil
}

// Apply overwrites the mapped attributes and reports whether anything changed
func (c *Customer) Apply(details CustomerDetails) (bool, error) {
	if err := validateEmail(details.Email); err != nil {
		return false, err
	}
	before := *c
	c.assign(details)
	if before.Email == c.Email && before.FirstName == c.FirstName &&
		before.LastName == c.LastName && before.Active == c.Active {
		return false, nil
	}
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return true, nil
}

// LinkSource attaches a remote source id to a customer matched by email
func (c *Customer) LinkSource(sourceID int64) error {
	if c.SourceID != nil && *c.SourceID != sourceID {
		return shared.NewDomainError("SOURCE_CONFLICT", "Customer is already linked to another source record")
	}
	c.SourceID = &sourceID
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return nil
}

// UpsertAddress adds or replaces the address with the same source id.
// It reports whether the address set changed.
func (c *Customer) UpsertAddress(addr Address) bool {
	for i := range c.Addresses {
		existing := &c.Addresses[i]
		if existing.SourceID == addr.SourceID {
			addr.ID = existing.ID
			addr.CustomerID = c.ID
			if existing.sameAs(addr) {
				return false
			}
			c.Addresses[i] = addr
			return true
		}
	}
	addr.CustomerID = c.ID
	c.Addresses = append(c.Addresses, addr)
	return true
}

func (c *Customer) assign(d CustomerDetails) {
	c.Email = NormalizeEmail(d.Email)
	c.FirstName = strings.TrimSpace(d.FirstName)
	c.LastName = strings.TrimSpace(d.LastName)
	c.Active = d.Active
	c.Name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	if c.Name == "" {
		c.Name = c.Email
	}
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Customer email is required")
	}
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

package partner

import (
	"strings"

	"github.com/google/uuid"
)

// Address is a postal address owned by a Customer
type Address struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	SourceID    int64
	Alias       string
	Company     string
	FirstName   string
	LastName    string
	Street      string
	Street2     string
	PostalCode  string
	City        string
	State       string
	Phone       string
	Mobile      string
	CountryCode string
}

// NewAddress creates an address with a fresh id
func NewAddress(sourceID int64) Address {
	return Address{ID: uuid.New(), SourceID: sourceID}
}

// FullText returns the address as a single line
func (a Address) FullText() string {
	parts := []string{}
	for _, p := range []string{a.Street, a.Street2, a.PostalCode + " " + a.City, a.State, a.CountryCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (a Address) sameAs(b Address) bool {
	a.ID, b.ID = uuid.Nil, uuid.Nil
	a.CustomerID, b.CustomerID = uuid.Nil, uuid.Nil
	return a == b
}

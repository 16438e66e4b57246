package models

import (
	"time"

	"github.com/erp/importer/internal/domain/partner"
	"github.com/google/uuid"
)

// CustomerModel is the persistence model for the Customer domain entity.
type CustomerModel struct {
	AggregateModel
	SourceID  *int64 `gorm:"uniqueIndex:idx_customers_source_id"`
	Email     string `gorm:"type:varchar(255);not null;index"`
	FirstName string `gorm:"type:varchar(128)"`
	LastName  string `gorm:"type:varchar(128)"`
	Name      string `gorm:"type:varchar(255);not null"`
	Active    bool   `gorm:"not null"`

	Addresses []CustomerAddressModel `gorm:"foreignKey:CustomerID"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer.
func (m *CustomerModel) ToDomain() *partner.Customer {
	c := &partner.Customer{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SourceID:          m.SourceID,
		Email:             m.Email,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		Name:              m.Name,
		Active:            m.Active,
	}
	for i := range m.Addresses {
		c.Addresses = append(c.Addresses, m.Addresses[i].ToDomain())
	}
	return c
}

// CustomerModelFromDomain creates a persistence model from a domain Customer, addresses included.
func CustomerModelFromDomain(c *partner.Customer) *CustomerModel {
	m := &CustomerModel{
		SourceID:  c.SourceID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Name:      c.Name,
		Active:    c.Active,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	for _, a := range c.Addresses {
		m.Addresses = append(m.Addresses, CustomerAddressModelFromDomain(c.ID, a))
	}
	return m
}

// CustomerAddressModel is the persistence model for a customer address.
type CustomerAddressModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceID    int64     `gorm:"not null;uniqueIndex:idx_customer_addresses_source_id"`
	Alias       string    `gorm:"type:varchar(64)"`
	Company     string    `gorm:"type:varchar(255)"`
	FirstName   string    `gorm:"type:varchar(128)"`
	LastName    string    `gorm:"type:varchar(128)"`
	Street      string    `gorm:"type:varchar(255)"`
	Street2     string    `gorm:"type:varchar(255)"`
	PostalCode  string    `gorm:"type:varchar(32)"`
	City        string    `gorm:"type:varchar(128)"`
	State       string    `gorm:"type:varchar(128)"`
	Phone       string    `gorm:"type:varchar(64)"`
	Mobile      string    `gorm:"type:varchar(64)"`
	CountryCode string    `gorm:"type:varchar(2)"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CustomerAddressModel) TableName() string {
	return "customer_addresses"
}

// ToDomain converts the persistence model to a domain Address.
func (m *CustomerAddressModel) ToDomain() partner.Address {
	return partner.Address{
		ID:          m.ID,
		CustomerID:  m.CustomerID,
		SourceID:    m.SourceID,
		Alias:       m.Alias,
		Company:     m.Company,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Street:      m.Street,
		Street2:     m.Street2,
		PostalCode:  m.PostalCode,
		City:        m.City,
		State:       m.State,
		Phone:       m.Phone,
		Mobile:      m.Mobile,
		CountryCode: m.CountryCode,
	}
}

// CustomerAddressModelFromDomain creates a persistence model for an address of customerID.
func CustomerAddressModelFromDomain(customerID uuid.UUID, a partner.Address) CustomerAddressModel {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return CustomerAddressModel{
		ID:          id,
		CustomerID:  customerID,
		SourceID:    a.SourceID,
		Alias:       a.Alias,
		Company:     a.Company,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Street:      a.Street,
		Street2:     a.Street2,
		PostalCode:  a.PostalCode,
		City:        a.City,
		State:       a.State,
		Phone:       a.Phone,
		Mobile:      a.Mobile,
		CountryCode: a.CountryCode,
	}
}

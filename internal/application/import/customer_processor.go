package importapp

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/partner"
	"github.com/erp/importer/internal/domain/shared"
)

// CustomerProcessor imports source customers and their addresses
type CustomerProcessor struct {
	source    integration.CatalogSource
	countries map[int64]string
	states    map[int64]string
}

// NewCustomerProcessor creates a CustomerProcessor
func NewCustomerProcessor(source integration.CatalogSource) *CustomerProcessor {
	return &CustomerProcessor{source: source}
}

// Kind implements RecordProcessor
func (p *CustomerProcessor) Kind() bulk.EntityKind { return bulk.EntityCustomers }

// Resource implements RecordProcessor
func (p *CustomerProcessor) Resource() integration.Resource { return integration.ResourceCustomers }

// Begin clears the country and state memos
func (p *CustomerProcessor) Begin(ctx context.Context, scope TransactionScope) error {
	p.countries = make(map[int64]string)
	p.states = make(map[int64]string)
	return nil
}

// Prepare fetches one customer with its addresses. Customers without an email are skipped.
func (p *CustomerProcessor) Prepare(ctx context.Context, id int64) (*Prepared, error) {
	src, err := p.source.Customer(ctx, id)
	if err != nil {
		return nil, inPhase(bulk.PhaseFetch, err)
	}
	if strings.TrimSpace(src.Email) == "" {
		return skipped(warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"customer %d has no email; skipped", id)), nil
	}

	details := partner.CustomerDetails{
		Email:     src.Email,
		FirstName: src.FirstName,
		LastName:  src.LastName,
		Active:    src.Active,
	}

	var warnings []bulk.Warning
	rows, err := p.source.AddressesForCustomer(ctx, id)
	if err != nil {
		return nil, inPhase(bulk.PhaseFetch, err)
	}
	addresses := make([]partner.Address, 0, len(rows))
	for _, row := range rows {
		addr := partner.NewAddress(row.ID)
		addr.Alias = row.Alias
		addr.Company = row.Company
		addr.FirstName = row.FirstName
		addr.LastName = row.LastName
		addr.Street = row.Address1
		addr.Street2 = row.Address2
		addr.PostalCode = row.Postcode
		addr.City = row.City
		addr.Phone = row.Phone
		addr.Mobile = row.PhoneMobile
		if row.CountryID != 0 {
			iso, err := p.countryISO(ctx, row.CountryID)
			if err != nil {
				warnings = append(warnings, warning(bulk.PhaseFetch, bulk.Classify(err),
					"customer %d: country %d of address %d not resolved: %v", id, row.CountryID, row.ID, err))
			}
			addr.CountryCode = iso
		}
		if row.StateID != 0 {
			name, err := p.stateName(ctx, row.StateID)
			if err != nil {
				warnings = append(warnings, warning(bulk.PhaseFetch, bulk.Classify(err),
					"customer %d: state %d of address %d not resolved: %v", id, row.StateID, row.ID, err))
			}
			addr.State = name
		}
		addresses = append(addresses, addr)
	}

	return &Prepared{
		Warnings: warnings,
		Apply: func(ctx context.Context, repos TransactionalRepositories) (Change, error) {
			customers := repos.Customers()
			customer, created, linked, err := matchCustomer(ctx, customers, id, details)
			if err != nil {
				return Change{}, err
			}

			changed := linked
			if !created {
				updated, err := customer.Apply(details)
				if err != nil {
					return Change{}, inPhase(bulk.PhaseMapping, err)
				}
				changed = changed || updated
			}
			for _, addr := range addresses {
				changed = customer.UpsertAddress(addr) || changed
			}

			if created || changed {
				if err := customers.Save(ctx, customer); err != nil {
					return Change{}, inPhase(bulk.PhaseCommit, err)
				}
			}
			return Change{Kind: changeFor(created, changed)}, nil
		},
	}, nil
}

// countryISO resolves a country id once per run
func (p *CustomerProcessor) countryISO(ctx context.Context, countryID int64) (string, error) {
	if iso, ok := p.countries[countryID]; ok {
		return iso, nil
	}
	iso, err := p.source.CountryISO(ctx, countryID)
	if err != nil {
		return "", err
	}
	p.countries[countryID] = iso
	return iso, nil
}

// stateName resolves a state id once per run
func (p *CustomerProcessor) stateName(ctx context.Context, stateID int64) (string, error) {
	if name, ok := p.states[stateID]; ok {
		return name, nil
	}
	name, err := p.source.StateName(ctx, stateID)
	if err != nil {
		return "", err
	}
	p.states[stateID] = name
	return name, nil
}

// matchCustomer finds the target customer by source id, then an existing one by email,
// and links it. A new customer is returned when nothing matches.
func matchCustomer(ctx context.Context, customers partner.CustomerRepository, id int64, details partner.CustomerDetails) (customer *partner.Customer, created, linked bool, err error) {
	customer, err = customers.FindBySourceID(ctx, id)
	if err == nil {
		return customer, false, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}

	customer, err = customers.FindByEmail(ctx, details.Email)
	switch {
	case err == nil:
		if err := customer.LinkSource(id); err != nil {
			return nil, false, false, inPhase(bulk.PhaseMapping, err)
		}
		return customer, false, true, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}

	sourceID := id
	customer, err = partner.NewCustomer(&sourceID, details)
	if err != nil {
		return nil, false, false, inPhase(bulk.PhaseMapping, err)
	}
	return customer, true, true, nil
}

var _ RecordProcessor = (*CustomerProcessor)(nil)

package partner

import (
	"context"

	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// CustomerRepository defines the interface for customer persistence
type CustomerRepository interface {
	// FindByID finds a customer with its addresses
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// FindBySourceID finds the customer mapped to a remote source id
	FindBySourceID(ctx context.Context, sourceID int64) (*Customer, error)

	// FindByEmail finds a customer by email, case-insensitively
	FindByEmail(ctx context.Context, email string) (*Customer, error)

	// Save creates or updates a customer and its addresses
	Save(ctx context.Context, customer *Customer) error

	// Count counts customers matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

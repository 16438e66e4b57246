package importapp

import (
	"context"
	"time"

	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/inventory"
	"github.com/erp/importer/internal/domain/partner"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to the target repositories.
// One record is written per Execute call: all repository operations inside fn share a single
// database transaction that is committed when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all target repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	Categories() catalog.CategoryRepository
	PublicCategories() catalog.PublicCategoryRepository
	Products() catalog.ProductRepository
	StockLevels() inventory.StockLevelRepository
	Customers() partner.CustomerRepository
	// Relations answers existence questions against named target relations
	Relations() RelationProbe
}

// RelationProbe answers capability and existence queries against target relations by name.
type RelationProbe interface {
	// HasRelation reports whether the named relation exists in this deployment
	HasRelation(ctx context.Context, relation string) (bool, error)

	// ResolveSourceIDs maps source ids to the target ids recorded in relation.
	// Source ids with no row are absent from the result.
	ResolveSourceIDs(ctx context.Context, relation string, sourceIDs []int64) (map[int64]uuid.UUID, error)

	// ExistingIDs returns the subset of ids that have a row in relation
	ExistingIDs(ctx context.Context, relation string, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// TransientClassifier reports whether a storage error is worth retrying in a fresh unit of work
type TransientClassifier func(err error) bool

// RunLock serializes import runs.
// TryAcquire returns shared.ErrConcurrentRun when another holder owns key.
type RunLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// ImageStore keeps mirrored product images and returns a reference for each stored object
type ImageStore interface {
	PutImage(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// NoOpTransactionScope runs fn against fixed repositories without a transaction.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	repos TransactionalRepositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over repos
func NewNoOpTransactionScope(repos TransactionalRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs fn directly
func (s *NoOpTransactionScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.repos)
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)

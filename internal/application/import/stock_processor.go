package importapp

import (
	"context"
	"errors"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/inventory"
	"github.com/erp/importer/internal/domain/shared"
)

// StockProcessor imports product-level stock rows and mirrors them onto the product
type StockProcessor struct {
	source integration.CatalogSource
}

// NewStockProcessor creates a StockProcessor
func NewStockProcessor(source integration.CatalogSource) *StockProcessor {
	return &StockProcessor{source: source}
}

// Kind implements RecordProcessor
func (p *StockProcessor) Kind() bulk.EntityKind { return bulk.EntityStock }

// Resource implements RecordProcessor
func (p *StockProcessor) Resource() integration.Resource { return integration.ResourceStockAvailables }

// Begin implements RecordProcessor
func (p *StockProcessor) Begin(ctx context.Context, scope TransactionScope) error { return nil }

// Prepare fetches one stock row. Combination rows are skipped.
func (p *StockProcessor) Prepare(ctx context.Context, id int64) (*Prepared, error) {
	row, err := p.source.StockAvailable(ctx, id)
	if err != nil {
		return nil, inPhase(bulk.PhaseFetch, err)
	}
	if row.ProductAttributeID != 0 {
		return skipped(), nil
	}

	qty, warnings, err := parseQuantity(id, row.Quantity)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Warnings: warnings,
		Apply: func(ctx context.Context, repos TransactionalRepositories) (Change, error) {
			product, err := repos.Products().FindBySourceID(ctx, row.ProductID)
			if errors.Is(err, shared.ErrNotFound) {
				return Change{}, inPhase(bulk.PhaseRelationship, classified(bulk.ClassReferentialIntegrityViolation,
					"stock row %d: product %d has not been imported", id, row.ProductID))
			}
			if err != nil {
				return Change{}, inPhase(bulk.PhaseRelationship, err)
			}

			var created, changed bool
			level, err := repos.StockLevels().FindBySourceID(ctx, id)
			switch {
			case err == nil:
				changed, err = level.SetQuantity(product.ID, qty)
				if err != nil {
					return Change{}, inPhase(bulk.PhaseMapping, err)
				}
			case errors.Is(err, shared.ErrNotFound):
				level, err = inventory.NewStockLevel(id, row.ProductID, product.ID, qty)
				if err != nil {
					return Change{}, inPhase(bulk.PhaseMapping, err)
				}
				created = true
			default:
				return Change{}, inPhase(bulk.PhaseCommit, err)
			}
			if err := repos.StockLevels().Save(ctx, level); err != nil {
				return Change{}, inPhase(bulk.PhaseCommit, err)
			}

			var extra []bulk.Warning
			if product.IsService() {
				extra = append(extra, warning(bulk.PhaseMapping, bulk.ClassMalformedData,
					"stock row %d: product %d is a service; on-hand quantity not mirrored", id, row.ProductID))
			} else {
				restocked, err := product.SetStock(qty)
				if err != nil {
					return Change{}, inPhase(bulk.PhaseMapping, err)
				}
				if restocked {
					if err := repos.Products().Save(ctx, product); err != nil {
						return Change{}, inPhase(bulk.PhaseCommit, err)
					}
					changed = true
				}
			}
			return Change{Kind: changeFor(created, changed), Warnings: extra}, nil
		},
	}, nil
}

var _ RecordProcessor = (*StockProcessor)(nil)

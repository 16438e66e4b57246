package importapp

import (
	"context"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
)

// CategoryProcessor imports source categories through the hierarchy resolver
type CategoryProcessor struct {
	source   integration.CatalogSource
	settings Settings
	resolver *HierarchyResolver
}

// NewCategoryProcessor creates a CategoryProcessor
func NewCategoryProcessor(source integration.CatalogSource, settings Settings) *CategoryProcessor {
	return &CategoryProcessor{source: source, settings: settings}
}

// Kind implements RecordProcessor
func (p *CategoryProcessor) Kind() bulk.EntityKind { return bulk.EntityCategories }

// Resource implements RecordProcessor
func (p *CategoryProcessor) Resource() integration.Resource { return integration.ResourceCategories }

// Begin starts a fresh resolver; nothing about the graph survives between runs
func (p *CategoryProcessor) Begin(ctx context.Context, scope TransactionScope) error {
	p.resolver = NewHierarchyResolver(p.source, p.settings)
	return nil
}

// Plan orders the listed categories parents first
func (p *CategoryProcessor) Plan(ctx context.Context, ids []int64) ([]int64, []bulk.Outcome, error) {
	return p.resolver.Plan(ctx, ids)
}

// Prepare builds the parent chain of one category
func (p *CategoryProcessor) Prepare(ctx context.Context, id int64) (*Prepared, error) {
	chain, warnings, err := p.resolver.Chain(ctx, id)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return skipped(), nil
	}

	leaf := chain.Links[len(chain.Links)-1]
	if leaf.NameSynthesized {
		warnings = append(warnings, warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"category %d has no name; stored as %q", id, leaf.Name))
	}

	return &Prepared{
		Warnings: warnings,
		Apply: func(ctx context.Context, repos TransactionalRepositories) (Change, error) {
			result, err := p.resolver.Apply(ctx, repos, chain, true)
			if err != nil {
				return Change{}, err
			}
			return Change{
				Kind:        changeFor(result.Created, result.Changed),
				AfterCommit: func() { p.resolver.Commit(result) },
			}, nil
		},
	}, nil
}

var (
	_ RecordProcessor = (*CategoryProcessor)(nil)
	_ Planner         = (*CategoryProcessor)(nil)
)

package importapp

import (
	"context"
	"fmt"
	"slices"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CategoryRelation is the relation holding the internal category tree
const CategoryRelation = "categories"

// PublicCategoryRelation is the storefront relation that product links reference.
// Public categories are mirrored into it and product_public_category_rel points at it.
const PublicCategoryRelation = "product_public_categories"

// IntegrityGuard validates relationship ids against the target relation they belong to.
// The relation model for storefront categories is probed once per run from an ordered list
// of candidates; every write re-checks its ids against that model.
type IntegrityGuard struct {
	candidates []string
}

// NewIntegrityGuard creates a guard over the ordered candidate relation names
func NewIntegrityGuard(candidates []string) *IntegrityGuard {
	return &IntegrityGuard{candidates: slices.Clone(candidates)}
}

// ResolvedRelations is the outcome of probing the target for one run
type ResolvedRelations struct {
	// PublicCategories is the storefront category relation in use, empty when none can be linked
	PublicCategories string
	// Unlinkable names a storefront relation that exists but that product links cannot reference
	Unlinkable string
}

// HasPublicCategories reports whether a storefront category relation was found
func (r ResolvedRelations) HasPublicCategories() bool {
	return r.PublicCategories != ""
}

// Probe picks the first candidate relation that exists in the target.
// Only PublicCategoryRelation can back product links; any other model found first leaves
// the run without a storefront relation. It runs once per run; its result is reused, the
// per-id checks are not.
func (g *IntegrityGuard) Probe(ctx context.Context, probe RelationProbe) (ResolvedRelations, error) {
	log := logger.FromContext(ctx)
	for _, name := range g.candidates {
		ok, err := probe.HasRelation(ctx, name)
		if err != nil {
			return ResolvedRelations{}, fmt.Errorf("probe relation %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if name != PublicCategoryRelation {
			log.Warn("Public category relation is not referenced by product links; storefront links will be dropped",
				zap.String("relation", name),
				zap.String("link_target", PublicCategoryRelation))
			return ResolvedRelations{Unlinkable: name}, nil
		}
		log.Debug("Public category relation resolved", zap.String("relation", name))
		return ResolvedRelations{PublicCategories: name}, nil
	}
	log.Warn("No public category relation found; storefront links will be dropped",
		zap.Strings("candidates", g.candidates))
	return ResolvedRelations{}, nil
}

// FilterPublicCategories maps source category ids to storefront category ids in the probed
// relation and keeps only ids that exist there. Every dropped id yields a
// ReferentialIntegrityViolation warning. An id that exists only in another relation, such as
// the internal category tree, is dropped too.
func (g *IntegrityGuard) FilterPublicCategories(
	ctx context.Context,
	probe RelationProbe,
	rel ResolvedRelations,
	recordID int64,
	sourceIDs []int64,
) ([]uuid.UUID, []bulk.Warning, error) {
	if len(sourceIDs) == 0 {
		return nil, nil, nil
	}
	if rel.Unlinkable != "" {
		return nil, []bulk.Warning{warning(bulk.PhaseRelationship, bulk.ClassReferentialIntegrityViolation,
			"record %d: storefront categories live in %s, which product links cannot reference; dropped %d link(s)",
			recordID, rel.Unlinkable, len(sourceIDs))}, nil
	}
	if !rel.HasPublicCategories() {
		return nil, []bulk.Warning{warning(bulk.PhaseRelationship, bulk.ClassReferentialIntegrityViolation,
			"record %d: no storefront category relation available; dropped %d link(s)", recordID, len(sourceIDs))}, nil
	}

	mapped, err := probe.ResolveSourceIDs(ctx, rel.PublicCategories, sourceIDs)
	if err != nil {
		return nil, nil, inPhase(bulk.PhaseRelationship, err)
	}

	candidates := make([]uuid.UUID, 0, len(mapped))
	for _, src := range sourceIDs {
		if id, ok := mapped[src]; ok {
			candidates = append(candidates, id)
		}
	}
	existing, err := probe.ExistingIDs(ctx, rel.PublicCategories, candidates)
	if err != nil {
		return nil, nil, inPhase(bulk.PhaseRelationship, err)
	}

	var (
		kept     []uuid.UUID
		warnings []bulk.Warning
		seen     = make(map[uuid.UUID]bool, len(sourceIDs))
	)
	for _, src := range sourceIDs {
		id, ok := mapped[src]
		if !ok || !existing[id] {
			warnings = append(warnings, warning(bulk.PhaseRelationship, bulk.ClassReferentialIntegrityViolation,
				"record %d: storefront category %d does not exist in %s; link dropped", recordID, src, rel.PublicCategories))
			logger.FromContext(ctx).Warn("Dropped storefront category link",
				zap.Int64("record_id", recordID),
				zap.Int64("category_source_id", src),
				zap.String("relation", rel.PublicCategories))
			continue
		}
		if !seen[id] {
			seen[id] = true
			kept = append(kept, id)
		}
	}
	return kept, warnings, nil
}

// CheckCategory confirms that id exists in the internal category relation
func (g *IntegrityGuard) CheckCategory(ctx context.Context, probe RelationProbe, recordID int64, id uuid.UUID) error {
	existing, err := probe.ExistingIDs(ctx, CategoryRelation, []uuid.UUID{id})
	if err != nil {
		return inPhase(bulk.PhaseRelationship, err)
	}
	if !existing[id] {
		return inPhase(bulk.PhaseRelationship, classified(bulk.ClassReferentialIntegrityViolation,
			"record %d: category %s does not exist in %s", recordID, id, CategoryRelation))
	}
	return nil
}

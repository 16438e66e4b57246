package importapp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductProcessor imports source products.
// Default categories are resolved on demand through the hierarchy resolver; associated
// categories become storefront links that pass through the integrity guard.
type ProductProcessor struct {
	source   integration.CatalogSource
	settings Settings
	guard    *IntegrityGuard
	images   ImageStore

	resolver  *HierarchyResolver
	relations ResolvedRelations
	fallback  *uuid.UUID
}

// NewProductProcessor creates a ProductProcessor. images may be nil.
func NewProductProcessor(source integration.CatalogSource, settings Settings, guard *IntegrityGuard, images ImageStore) *ProductProcessor {
	return &ProductProcessor{source: source, settings: settings, guard: guard, images: images}
}

// Kind implements RecordProcessor
func (p *ProductProcessor) Kind() bulk.EntityKind { return bulk.EntityProducts }

// Resource implements RecordProcessor
func (p *ProductProcessor) Resource() integration.Resource { return integration.ResourceProducts }

// Begin resets the per-run memo and probes the storefront category relation
func (p *ProductProcessor) Begin(ctx context.Context, scope TransactionScope) error {
	p.resolver = NewHierarchyResolver(p.source, p.settings)
	p.fallback = nil
	return scope.Execute(ctx, func(repos TransactionalRepositories) error {
		rel, err := p.guard.Probe(ctx, repos.Relations())
		if err != nil {
			return err
		}
		p.relations = rel
		return nil
	})
}

// productDraft is a mapped source product waiting to be written
type productDraft struct {
	id            int64
	details       catalog.ProductDetails
	chain         *CategoryChain
	publicSources []int64
	imageRefs     []string
	quantity      *decimal.Decimal
}

// Prepare fetches one product with its category chain, images and stock
func (p *ProductProcessor) Prepare(ctx context.Context, id int64) (*Prepared, error) {
	src, err := p.source.Product(ctx, id)
	if err != nil {
		return nil, inPhase(bulk.PhaseFetch, err)
	}

	draft, warnings, err := p.mapProduct(ctx, src)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Warnings: warnings,
		Apply: func(ctx context.Context, repos TransactionalRepositories) (Change, error) {
			return p.apply(ctx, repos, draft)
		},
	}, nil
}

func (p *ProductProcessor) mapProduct(ctx context.Context, src *integration.SourceProduct) (*productDraft, []bulk.Warning, error) {
	var warnings []bulk.Warning

	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = fmt.Sprintf("Product %d", src.ID)
		warnings = append(warnings, warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"product %d has no name; stored as %q", src.ID, name))
	}
	price, w := parseAmount(src.ID, "price", src.Price)
	warnings = appendWarning(warnings, w)
	wholesale, w := parseAmount(src.ID, "wholesale_price", src.WholesalePrice)
	warnings = appendWarning(warnings, w)
	weight, w := parseAmount(src.ID, "weight", src.Weight)
	warnings = appendWarning(warnings, w)

	productType := catalog.ProductTypeGoods
	if src.Type == "virtual" {
		productType = catalog.ProductTypeService
	}

	draft := &productDraft{
		id: src.ID,
		details: catalog.ProductDetails{
			Name:             name,
			Reference:        src.Reference,
			EAN13:            src.EAN13,
			Description:      src.Description,
			ShortDescription: src.ShortDescription,
			Price:            price,
			WholesalePrice:   wholesale,
			Weight:           weight,
			Type:             productType,
			Active:           src.Active,
		},
	}

	if def := src.DefaultCategoryID; def != nil && !p.resolver.IsReserved(*def) {
		chain, ws, err := p.resolver.Chain(ctx, *def)
		warnings = append(warnings, ws...)
		switch class := bulk.Classify(err); {
		case err == nil:
			draft.chain = chain
		case errors.Is(err, integration.ErrSourceNotFound),
			class == bulk.ClassCyclicHierarchy,
			class == bulk.ClassMalformedData:
			warnings = append(warnings, warning(phaseOf(err, bulk.PhaseHierarchy), class,
				"product %d: default category %d unusable (%v); using %q", src.ID, *def, err, p.settings.FallbackCategoryName))
		default:
			return nil, warnings, inPhase(bulk.PhaseHierarchy, err)
		}
	}

	seen := make(map[int64]bool, len(src.CategoryIDs))
	for _, cid := range src.CategoryIDs {
		if seen[cid] || p.resolver.IsReserved(cid) || (src.DefaultCategoryID != nil && cid == *src.DefaultCategoryID) {
			continue
		}
		seen[cid] = true
		draft.publicSources = append(draft.publicSources, cid)
	}

	draft.imageRefs, warnings = p.imageRefs(ctx, src, warnings)

	if productType != catalog.ProductTypeService {
		qty, ws := p.quantity(ctx, src)
		warnings = append(warnings, ws...)
		draft.quantity = qty
	}

	return draft, warnings, nil
}

// imageRefs records a reference per source image, mirroring the bytes when enabled.
// A failed mirror keeps the source reference.
func (p *ProductProcessor) imageRefs(ctx context.Context, src *integration.SourceProduct, warnings []bulk.Warning) ([]string, []bulk.Warning) {
	refs := make([]string, 0, len(src.ImageIDs))
	for _, imageID := range src.ImageIDs {
		ref := fmt.Sprintf("prestashop:images/products/%d/%d", src.ID, imageID)
		if p.settings.MirrorImages && p.images != nil {
			stored, err := p.mirrorImage(ctx, src.ID, imageID)
			if err != nil {
				warnings = append(warnings, warning(phaseOf(err, bulk.PhaseFetch), bulk.Classify(err),
					"product %d: image %d not mirrored: %v", src.ID, imageID, err))
			} else {
				ref = stored
			}
		}
		refs = append(refs, ref)
	}
	return refs, warnings
}

func (p *ProductProcessor) mirrorImage(ctx context.Context, productID, imageID int64) (string, error) {
	img, err := p.source.Image(ctx, productID, imageID)
	if err != nil {
		return "", inPhase(bulk.PhaseFetch, err)
	}
	ext := ".img"
	if exts, _ := mime.ExtensionsByType(img.ContentType); len(exts) > 0 {
		ext = exts[0]
	}
	key := fmt.Sprintf("products/%d/%d%s", productID, imageID, ext)
	ref, err := p.images.PutImage(ctx, key, img.ContentType, img.Data)
	if err != nil {
		return "", inPhase(bulk.PhaseCommit, bulk.NewRecordError(bulk.ClassTransientStorageFailure, err))
	}
	return ref, nil
}

// quantity reads the inline quantity or, failing that, the product-level stock row.
// A quantity that cannot be read leaves the stored stock untouched.
func (p *ProductProcessor) quantity(ctx context.Context, src *integration.SourceProduct) (*decimal.Decimal, []bulk.Warning) {
	raw := src.Quantity
	if raw == nil {
		rows, err := p.source.StockForProduct(ctx, src.ID)
		if err != nil {
			return nil, []bulk.Warning{warning(bulk.PhaseFetch, bulk.Classify(err),
				"product %d: stock not available: %v", src.ID, err)}
		}
		for _, row := range rows {
			if row.ProductAttributeID == 0 {
				q := row.Quantity
				raw = &q
				break
			}
		}
	}
	if raw == nil {
		return nil, nil
	}
	qty, warnings, err := parseQuantity(src.ID, *raw)
	if err != nil {
		return nil, []bulk.Warning{warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"product %d: quantity %q is not numeric; stock left unchanged", src.ID, strings.TrimSpace(*raw))}
	}
	return &qty, warnings
}

func (p *ProductProcessor) apply(ctx context.Context, repos TransactionalRepositories, d *productDraft) (Change, error) {
	var (
		categoryID  uuid.UUID
		chainResult *ChainResult
		fallback    *uuid.UUID
	)
	if d.chain != nil {
		res, err := p.resolver.Apply(ctx, repos, d.chain, false)
		if err != nil {
			return Change{}, err
		}
		chainResult = res
		categoryID = res.Leaf.ID
	} else {
		id, err := p.fallbackCategory(ctx, repos.Categories())
		if err != nil {
			return Change{}, err
		}
		categoryID = id
		fallback = &id
	}

	if err := p.guard.CheckCategory(ctx, repos.Relations(), d.id, categoryID); err != nil {
		return Change{}, err
	}
	publicIDs, warnings, err := p.guard.FilterPublicCategories(ctx, repos.Relations(), p.relations, d.id, d.publicSources)
	if err != nil {
		return Change{}, err
	}

	product, created, linked, err := matchProduct(ctx, repos.Products(), d.id, d.details)
	if err != nil {
		return Change{}, err
	}

	changed := linked
	if !created {
		updated, err := product.Apply(d.details)
		if err != nil {
			return Change{}, inPhase(bulk.PhaseMapping, err)
		}
		changed = changed || updated
	}
	changed = product.SetCategory(&categoryID) || changed
	changed = product.SetPublicCategories(publicIDs) || changed
	changed = product.SetImageRefs(d.imageRefs) || changed
	if d.quantity != nil && !product.IsService() {
		restocked, err := product.SetStock(*d.quantity)
		if err != nil {
			return Change{}, inPhase(bulk.PhaseMapping, err)
		}
		changed = changed || restocked
	}

	if created || changed {
		if err := repos.Products().Save(ctx, product); err != nil {
			return Change{}, inPhase(bulk.PhaseCommit, err)
		}
	}

	return Change{
		Kind:     changeFor(created, changed),
		Warnings: warnings,
		AfterCommit: func() {
			p.resolver.Commit(chainResult)
			if fallback != nil {
				p.fallback = fallback
			}
		},
	}, nil
}

// fallbackCategory returns the root category used when a product has no usable default
func (p *ProductProcessor) fallbackCategory(ctx context.Context, categories catalog.CategoryRepository) (uuid.UUID, error) {
	if p.fallback != nil {
		if _, err := categories.FindByID(ctx, *p.fallback); err == nil {
			return *p.fallback, nil
		}
	}
	name := p.settings.FallbackCategoryName
	if name == "" {
		name = "All"
	}
	existing, err := categories.FindUnlinkedByName(ctx, name, nil)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return uuid.Nil, inPhase(bulk.PhaseCommit, err)
	}
	root, err := catalog.NewCategory(name, nil)
	if err != nil {
		return uuid.Nil, inPhase(bulk.PhaseMapping, err)
	}
	if err := categories.Save(ctx, root); err != nil {
		return uuid.Nil, inPhase(bulk.PhaseCommit, err)
	}
	return root.ID, nil
}

// matchProduct finds the target product by source id, then an unlinked one by reference,
// then by name, and links it. A new product is returned when nothing matches.
func matchProduct(ctx context.Context, products catalog.ProductRepository, id int64, details catalog.ProductDetails) (product *catalog.Product, created, linked bool, err error) {
	product, err = products.FindBySourceID(ctx, id)
	if err == nil {
		return product, false, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}

	lookups := []func() (*catalog.Product, error){
		func() (*catalog.Product, error) { return products.FindUnlinkedByReference(ctx, details.Reference) },
		func() (*catalog.Product, error) { return products.FindUnlinkedByName(ctx, details.Name) },
	}
	for _, lookup := range lookups {
		match, err := lookup()
		if err == nil {
			if err := match.LinkSource(id); err != nil {
				return nil, false, false, inPhase(bulk.PhaseMapping, err)
			}
			return match, false, true, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, false, false, inPhase(bulk.PhaseCommit, err)
		}
	}

	sourceID := id
	product, err = catalog.NewProduct(&sourceID, details)
	if err != nil {
		return nil, false, false, inPhase(bulk.PhaseMapping, err)
	}
	return product, true, true, nil
}

var _ RecordProcessor = (*ProductProcessor)(nil)

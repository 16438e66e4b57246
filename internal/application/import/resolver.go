package importapp

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
)

// sourceNode is the collected summary of one source category
type sourceNode struct {
	ID              int64
	Name            string
	ParentID        int64
	Active          bool
	NameSynthesized bool
}

// CategoryChain is the ordered path of source categories to write for one category, root first.
// Anchor is the target id of an already-resolved parent of the first link, if any.
type CategoryChain struct {
	Links  []*sourceNode
	Anchor *uuid.UUID
}

// Leaf returns the source id the chain was built for
func (c *CategoryChain) Leaf() int64 {
	if c == nil || len(c.Links) == 0 {
		return 0
	}
	return c.Links[len(c.Links)-1].ID
}

// ChainResult is what writing a chain produced
type ChainResult struct {
	Leaf    *catalog.Category
	Created bool
	Changed bool

	staged       map[int64]uuid.UUID
	stagedPublic map[int64]uuid.UUID
}

// HierarchyResolver turns parent-referencing source categories into a valid target tree.
// One resolver serves one run: the collected graph and the memo of resolved target ids
// are discarded with it.
type HierarchyResolver struct {
	source       integration.CatalogSource
	reserved     map[int64]bool
	maxDepth     int
	mirrorPublic bool

	nodes          map[int64]*sourceNode
	missing        map[int64]bool
	depths         map[int64]int
	resolved       map[int64]uuid.UUID
	publicResolved map[int64]uuid.UUID
}

// NewHierarchyResolver creates a resolver for one run
func NewHierarchyResolver(source integration.CatalogSource, settings Settings) *HierarchyResolver {
	maxDepth := settings.MaxDepth
	if maxDepth <= 0 {
		maxDepth = catalog.MaxCategoryDepth
	}
	return &HierarchyResolver{
		source:         source,
		reserved:       settings.reservedRoots(),
		maxDepth:       maxDepth,
		mirrorPublic:   settings.MirrorPublicCategories,
		nodes:          make(map[int64]*sourceNode),
		missing:        make(map[int64]bool),
		depths:         make(map[int64]int),
		resolved:       make(map[int64]uuid.UUID),
		publicResolved: make(map[int64]uuid.UUID),
	}
}

// IsReserved reports whether id is one of the implicit source roots
func (r *HierarchyResolver) IsReserved(id int64) bool {
	return r.reserved[id]
}

// Resolved returns the target id written for a source category during this run
func (r *HierarchyResolver) Resolved(sourceID int64) (uuid.UUID, bool) {
	id, ok := r.resolved[sourceID]
	return id, ok
}

// Plan collects every listed category and orders them by ascending depth, then by id.
// Reserved roots are dropped. Categories that cannot be fetched or whose parent chain
// loops or runs deeper than the bound are returned as rejected outcomes.
func (r *HierarchyResolver) Plan(ctx context.Context, ids []int64) ([]int64, []bulk.Outcome, error) {
	var rejected []bulk.Outcome
	collected := make([]int64, 0, len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if r.reserved[id] {
			continue
		}
		if _, err := r.ensureNode(ctx, id); err != nil {
			rejected = append(rejected, bulk.Failed(id, bulk.PhaseFetch, err))
			continue
		}
		collected = append(collected, id)
	}

	depth := make(map[int64]int, len(collected))
	ordered := make([]int64, 0, len(collected))
	for _, id := range collected {
		d, err := r.depth(id)
		if err != nil {
			rejected = append(rejected, bulk.Failed(id, bulk.PhaseHierarchy, err))
			continue
		}
		depth[id] = d
		ordered = append(ordered, id)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if depth[a] != depth[b] {
			return depth[a] < depth[b]
		}
		return a < b
	})

	return ordered, rejected, nil
}

// depth walks collected parents of id and returns its distance to a root, to an already
// resolved node, or to the edge of the collected set.
func (r *HierarchyResolver) depth(id int64) (int, error) {
	if d, ok := r.depths[id]; ok {
		return d, nil
	}

	path := map[int64]bool{id: true}
	cur := r.nodes[id]
	d := 0
	for {
		parent := cur.ParentID
		if parent == 0 || r.reserved[parent] {
			break
		}
		if parent == cur.ID || path[parent] {
			return 0, cyclicError(id, parent)
		}
		d++
		if d >= r.maxDepth {
			return 0, tooDeepError(id, r.maxDepth)
		}
		if _, ok := r.resolved[parent]; ok {
			break
		}
		if pd, ok := r.depths[parent]; ok {
			d += pd
			if d >= r.maxDepth {
				return 0, tooDeepError(id, r.maxDepth)
			}
			break
		}
		next, ok := r.nodes[parent]
		if !ok {
			break
		}
		path[parent] = true
		cur = next
	}

	r.depths[id] = d
	return d, nil
}

// Chain builds the root-first path of source categories needed to write id, fetching
// ancestors missing from the collected set. A parent that does not exist in the source ends
// the chain there, so the topmost found category becomes a root, with a MissingParent warning.
// It performs source I/O only and must be called outside any unit of work.
func (r *HierarchyResolver) Chain(ctx context.Context, id int64) (*CategoryChain, []bulk.Warning, error) {
	if r.reserved[id] {
		return nil, nil, nil
	}
	leaf, err := r.ensureNode(ctx, id)
	if err != nil {
		return nil, nil, inPhase(bulk.PhaseFetch, err)
	}

	var warnings []bulk.Warning
	chain := &CategoryChain{Links: []*sourceNode{leaf}}
	path := map[int64]bool{id: true}
	cur := leaf

	for {
		parent := cur.ParentID
		if parent == 0 || r.reserved[parent] {
			break
		}
		if parent == cur.ID || path[parent] {
			return nil, warnings, inPhase(bulk.PhaseHierarchy, cyclicError(id, parent))
		}
		if len(chain.Links) >= r.maxDepth {
			return nil, warnings, inPhase(bulk.PhaseHierarchy, tooDeepError(id, r.maxDepth))
		}
		if target, ok := r.resolved[parent]; ok {
			anchor := target
			chain.Anchor = &anchor
			break
		}

		node, err := r.ensureNode(ctx, parent)
		if errors.Is(err, integration.ErrSourceNotFound) {
			warnings = append(warnings, warning(bulk.PhaseHierarchy, bulk.ClassMissingParent,
				"category %d: parent %d does not exist in the source; %d placed at the root", cur.ID, parent, cur.ID))
			break
		}
		if err != nil {
			return nil, warnings, inPhase(bulk.PhaseHierarchy, err)
		}

		chain.Links = append(chain.Links, node)
		path[parent] = true
		cur = node
	}

	for i, j := 0, len(chain.Links)-1; i < j; i, j = i+1, j-1 {
		chain.Links[i], chain.Links[j] = chain.Links[j], chain.Links[i]
	}
	return chain, warnings, nil
}

// Apply writes chain inside the caller's unit of work, parents first.
// Each link is matched by source id, then by name under the same parent (and linked),
// and created otherwise. With touchLeaf the leaf's name, status and parent are refreshed
// from the source. Commit must be called once the unit of work committed.
func (r *HierarchyResolver) Apply(ctx context.Context, repos TransactionalRepositories, chain *CategoryChain, touchLeaf bool) (*ChainResult, error) {
	result := &ChainResult{
		staged:       make(map[int64]uuid.UUID, len(chain.Links)),
		stagedPublic: make(map[int64]uuid.UUID, len(chain.Links)),
	}

	var parent *catalog.Category
	if chain.Anchor != nil {
		p, err := repos.Categories().FindByID(ctx, *chain.Anchor)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, inPhase(bulk.PhaseCommit, err)
		}
		parent = p
	}

	var publicParent *uuid.UUID
	if r.mirrorPublic && len(chain.Links) > 0 {
		if first := chain.Links[0]; first.ParentID != 0 {
			if id, ok := r.publicResolved[first.ParentID]; ok {
				publicParent = &id
			}
		}
	}

	for i, node := range chain.Links {
		isLeaf := i == len(chain.Links)-1
		category, created, changed, err := r.upsertNode(ctx, repos, node, parent, isLeaf && touchLeaf)
		if err != nil {
			return nil, err
		}
		result.staged[node.ID] = category.ID

		if r.mirrorPublic {
			publicID, err := r.upsertPublic(ctx, repos, node, publicParent)
			if err != nil {
				return nil, err
			}
			result.stagedPublic[node.ID] = publicID
			publicParent = &publicID
		}

		if isLeaf {
			result.Leaf = category
			result.Created = created
			result.Changed = changed
		}
		parent = category
	}

	return result, nil
}

// Commit records the target ids of a committed chain for the rest of the run
func (r *HierarchyResolver) Commit(result *ChainResult) {
	if result == nil {
		return
	}
	for src, id := range result.staged {
		r.resolved[src] = id
	}
	for src, id := range result.stagedPublic {
		r.publicResolved[src] = id
	}
}

func (r *HierarchyResolver) upsertNode(
	ctx context.Context,
	repos TransactionalRepositories,
	node *sourceNode,
	parent *catalog.Category,
	refresh bool,
) (*catalog.Category, bool, bool, error) {
	categories := repos.Categories()

	existing, err := categories.FindBySourceID(ctx, node.ID)
	if err == nil {
		if !refresh {
			return existing, false, false, nil
		}
		oldPath, oldLevel := existing.Path, existing.Level
		changed, err := refreshCategory(existing, node, parent)
		if err != nil {
			return nil, false, false, inPhase(bulk.PhaseMapping, err)
		}
		if changed {
			if err := saveCategory(ctx, categories, existing, oldPath, oldLevel); err != nil {
				return nil, false, false, err
			}
		}
		return existing, false, changed, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}

	var parentID *uuid.UUID
	if parent != nil {
		parentID = &parent.ID
	}
	match, err := categories.FindUnlinkedByName(ctx, node.Name, parentID)
	switch {
	case err == nil:
		if err := match.LinkSource(node.ID); err != nil {
			return nil, false, false, inPhase(bulk.PhaseMapping, err)
		}
		oldPath, oldLevel := match.Path, match.Level
		if refresh {
			if _, err := refreshCategory(match, node, parent); err != nil {
				return nil, false, false, inPhase(bulk.PhaseMapping, err)
			}
		}
		if err := saveCategory(ctx, categories, match, oldPath, oldLevel); err != nil {
			return nil, false, false, err
		}
		return match, false, true, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}

	sourceID := node.ID
	var category *catalog.Category
	if parent == nil {
		category, err = catalog.NewCategory(node.Name, &sourceID)
	} else {
		category, err = catalog.NewChildCategory(node.Name, &sourceID, parent)
	}
	if err != nil {
		return nil, false, false, inPhase(bulk.PhaseMapping, err)
	}
	if !node.Active {
		category.Status = catalog.CategoryStatusInactive
	}
	if err := categories.Save(ctx, category); err != nil {
		return nil, false, false, inPhase(bulk.PhaseCommit, err)
	}
	return category, true, true, nil
}

// saveCategory stores category and, when it moved, carries its stored subtree along
func saveCategory(ctx context.Context, categories catalog.CategoryRepository, category *catalog.Category, oldPath string, oldLevel int) error {
	if category.Path != oldPath {
		if err := categories.MoveSubtree(ctx, oldPath, category.Path, category.Level-oldLevel); err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) {
				return inPhase(bulk.PhaseMapping, err)
			}
			return inPhase(bulk.PhaseCommit, err)
		}
	}
	if err := categories.Save(ctx, category); err != nil {
		return inPhase(bulk.PhaseCommit, err)
	}
	return nil
}

func refreshCategory(category *catalog.Category, node *sourceNode, parent *catalog.Category) (bool, error) {
	renamed, err := category.Rename(node.Name)
	if err != nil {
		return false, err
	}
	moved, err := category.MoveUnder(parent)
	if err != nil {
		return false, err
	}
	status := catalog.CategoryStatusActive
	if !node.Active {
		status = catalog.CategoryStatusInactive
	}
	restated := category.Status != status
	if restated {
		category.Status = status
		category.IncrementVersion()
	}
	return renamed || moved || restated, nil
}

func (r *HierarchyResolver) upsertPublic(
	ctx context.Context,
	repos TransactionalRepositories,
	node *sourceNode,
	parentID *uuid.UUID,
) (uuid.UUID, error) {
	publics := repos.PublicCategories()

	pc, err := publics.FindBySourceID(ctx, node.ID)
	if errors.Is(err, shared.ErrNotFound) {
		pc, err = publics.FindUnlinkedByName(ctx, node.Name)
		if err == nil {
			if err := pc.LinkSource(node.ID); err != nil {
				return uuid.Nil, inPhase(bulk.PhaseMapping, err)
			}
		}
	}
	if errors.Is(err, shared.ErrNotFound) {
		sourceID := node.ID
		pc, err = catalog.NewPublicCategory(node.Name, &sourceID, nil)
		if err != nil {
			return uuid.Nil, inPhase(bulk.PhaseMapping, err)
		}
		pc.ParentID = parentID
		if err := publics.Save(ctx, pc); err != nil {
			return uuid.Nil, inPhase(bulk.PhaseCommit, err)
		}
		return pc.ID, nil
	}
	if err != nil {
		return uuid.Nil, inPhase(bulk.PhaseCommit, err)
	}

	version := pc.Version
	if _, err := pc.Rename(node.Name); err != nil {
		return uuid.Nil, inPhase(bulk.PhaseMapping, err)
	}
	pc.SetParent(parentID)
	if pc.Version != version {
		if err := publics.Save(ctx, pc); err != nil {
			return uuid.Nil, inPhase(bulk.PhaseCommit, err)
		}
	}
	return pc.ID, nil
}

// ensureNode returns the collected summary of id, fetching it from the source once
func (r *HierarchyResolver) ensureNode(ctx context.Context, id int64) (*sourceNode, error) {
	if node, ok := r.nodes[id]; ok {
		return node, nil
	}
	if r.missing[id] {
		return nil, fmt.Errorf("%w: category %d", integration.ErrSourceNotFound, id)
	}

	src, err := r.source.Category(ctx, id)
	if err != nil {
		if errors.Is(err, integration.ErrSourceNotFound) {
			r.missing[id] = true
		}
		return nil, err
	}

	node := &sourceNode{ID: src.ID, Name: src.Name, Active: src.Active}
	if node.ID == 0 {
		node.ID = id
	}
	if src.ParentID != nil {
		node.ParentID = *src.ParentID
	}
	if node.Name == "" {
		node.Name = fmt.Sprintf("Category %d", id)
		node.NameSynthesized = true
	}
	r.nodes[id] = node
	return node, nil
}

func cyclicError(id, parent int64) error {
	if id == parent {
		return classified(bulk.ClassCyclicHierarchy, "category %d is its own parent", id)
	}
	return classified(bulk.ClassCyclicHierarchy, "category %d: parent chain loops back to %d", id, parent)
}

func tooDeepError(id int64, bound int) error {
	return classified(bulk.ClassCyclicHierarchy, "category %d: parent chain deeper than %d levels", id, bound)
}

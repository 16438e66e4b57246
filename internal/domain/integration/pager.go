package integration

import (
	"context"
	"slices"
)

// DefaultPageSize is used when a pager is built with a non-positive page size
const DefaultPageSize = 20

// Pager walks a resource listing one page at a time.
// A failed page leaves the pager where it was, so calling Next again re-requests it.
// Iteration ends at a short or empty page, at MaxItems, or when the source repeats a page.
type Pager struct {
	source   CatalogSource
	resource Resource
	filters  map[string]string
	pageSize int
	start    int
	maxItems int

	page     int
	yielded  int
	lastPage []int64
	done     bool
}

// PagerOption configures a Pager
type PagerOption func(*Pager)

// WithStartOffset skips the first n records of the listing
func WithStartOffset(n int) PagerOption {
	return func(p *Pager) {
		if n > 0 {
			p.start = n
		}
	}
}

// WithMaxItems stops iteration after n ids
func WithMaxItems(n int) PagerOption {
	return func(p *Pager) {
		if n > 0 {
			p.maxItems = n
		}
	}
}

// WithFilters restricts the listing with source-side filters
func WithFilters(filters map[string]string) PagerOption {
	return func(p *Pager) {
		p.filters = filters
	}
}

// NewPager creates a pager over resource
func NewPager(source CatalogSource, resource Resource, pageSize int, opts ...PagerOption) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pager{
		source:   source,
		resource: resource,
		pageSize: pageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Page fetches page n (zero based) without moving the pager
func (p *Pager) Page(ctx context.Context, n int) ([]int64, error) {
	return p.source.ListIDs(ctx, p.resource, ListOptions{
		Filters: p.filters,
		Offset:  p.start + n*p.pageSize,
		Limit:   p.pageSize,
	})
}

// Next returns the next page of ids. ok is false once the listing is exhausted.
func (p *Pager) Next(ctx context.Context) (ids []int64, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}

	ids, err = p.Page(ctx, p.page)
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 || (p.lastPage != nil && slices.Equal(ids, p.lastPage)) {
		p.done = true
		return nil, false, nil
	}

	p.page++
	p.lastPage = ids
	if len(ids) < p.pageSize {
		p.done = true
	}
	if p.maxItems > 0 && p.yielded+len(ids) >= p.maxItems {
		ids = ids[:p.maxItems-p.yielded]
		p.done = true
	}
	p.yielded += len(ids)
	return ids, true, nil
}

// Collect drains the pager into a single slice
func (p *Pager) Collect(ctx context.Context) ([]int64, error) {
	var all []int64
	for {
		ids, ok, err := p.Next(ctx)
		if err != nil {
			return all, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, ids...)
	}
}

// Yielded returns how many ids the pager has handed out
func (p *Pager) Yielded() int {
	return p.yielded
}

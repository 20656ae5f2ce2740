// Package collection drives a paged, filterable list view: it owns the query
// state, debounces search input, dispatches fetches and guarantees that only
// the response to the most recent request is ever applied.
package collection

import (
	"context"
	"net/url"
)

// Page is one page of a listing as reported by the backend.
type Page[T any] struct {
	Items       []T
	Total       int
	PerPage     int
	CurrentPage int
	LastPage    int
	From        int
	To          int
}

// EmptyPage returns the page shown before the first fetch and after a failure.
func EmptyPage[T any](perPage int) Page[T] {
	return Page[T]{
		Items:   []T{},
		PerPage: perPage,
	}
}

// Len returns the number of items on the page.
func (p Page[T]) Len() int {
	return len(p.Items)
}

// HasNext reports whether a page after the current one exists.
func (p Page[T]) HasNext() bool {
	return p.CurrentPage > 0 && p.CurrentPage < p.LastPage
}

// HasPrev reports whether a page before the current one exists.
func (p Page[T]) HasPrev() bool {
	return p.CurrentPage > 1
}

// normalize enforces the invariants the controller relies on.
func (p Page[T]) normalize(perPage int) Page[T] {
	if p.Items == nil {
		p.Items = []T{}
	}
	if p.PerPage <= 0 {
		p.PerPage = perPage
	}
	if len(p.Items) > p.PerPage {
		p.Items = p.Items[:p.PerPage]
	}
	if p.LastPage < 1 {
		p.LastPage = 1
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.Total < len(p.Items) {
		p.Total = len(p.Items)
	}
	return p
}

// Source fetches one page of an entity listing.
//
// endpoint is the path chosen by the controller (listing or search) and q the
// encoded query, always carrying page and per_page.
type Source[T any] interface {
	List(ctx context.Context, endpoint string, q url.Values) (Page[T], error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func(ctx context.Context, endpoint string, q url.Values) (Page[T], error)

// List implements Source.
func (f SourceFunc[T]) List(ctx context.Context, endpoint string, q url.Values) (Page[T], error) {
	return f(ctx, endpoint, q)
}

// Endpoints names the two backend paths of an entity.
type Endpoints struct {
	// Listing serves the unfiltered list.
	Listing string

	// Search serves the list when any filter or search term is set.
	Search string
}

// Endpoint kinds, used as a metric label.
const (
	KindListing = "listing"
	KindSearch  = "search"
)

// Select returns the endpoint and its kind for the given filter state.
func (e Endpoints) Select(hasActiveFilters bool) (string, string) {
	if hasActiveFilters && e.Search != "" {
		return e.Search, KindSearch
	}
	return e.Listing, KindListing
}

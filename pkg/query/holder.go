package query

import (
	"fmt"
	"sync"
)

// Schema describes the filters a list view supports.
type Schema struct {
	// Filters lists the filter names in display order.
	Filters []string

	// Dependents maps a filter to the filters that must be reset whenever it
	// changes. District lists are city-scoped, so city_id → district_id.
	Dependents map[string][]string

	// PerPage is the fixed page size (DefaultPerPage when zero).
	PerPage int
}

// DefaultDependents returns the cross-field reset rules shared by all entities.
func DefaultDependents() map[string][]string {
	return map[string][]string{
		FilterCity: {FilterDistrict},
	}
}

// Holder owns the query state of a single controller instance.
// It never triggers network activity; callers dispatch after mutating.
type Holder struct {
	mu     sync.RWMutex
	schema Schema
	known  map[string]bool
	params Params
}

// NewHolder creates a holder with every filter unset and page 1.
func NewHolder(schema Schema) *Holder {
	if schema.PerPage <= 0 {
		schema.PerPage = DefaultPerPage
	}
	if schema.Dependents == nil {
		schema.Dependents = DefaultDependents()
	}

	known := make(map[string]bool, len(schema.Filters))
	names := make([]string, 0, len(schema.Filters))
	for _, name := range schema.Filters {
		if known[name] {
			continue
		}
		known[name] = true
		names = append(names, name)
	}

	h := &Holder{
		schema: schema,
		known:  known,
		params: Params{
			names:   names,
			values:  make(map[string]string, len(names)),
			PerPage: schema.PerPage,
		},
	}
	h.resetLocked()
	return h
}

// SetFilter sets a filter value. An empty value or Unset clears the filter.
// Dependent filters are reset in the same update and the page returns to 1.
func (h *Holder) SetFilter(name, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.known[name] {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}

	if IsUnsetFor(name, value) {
		value = unsetValue(name)
	}
	h.params.values[name] = value

	for _, dep := range h.schema.Dependents[name] {
		if h.known[dep] {
			h.params.values[dep] = unsetValue(dep)
		}
	}

	h.params.Page = 1
	return nil
}

// SetPage sets the current page.
func (h *Holder) SetPage(n int) error {
	if n < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, n)
	}

	h.mu.Lock()
	h.params.Page = n
	h.mu.Unlock()
	return nil
}

// ClearAll resets every filter to Unset and the page to 1.
func (h *Holder) ClearAll() {
	h.mu.Lock()
	h.resetLocked()
	h.mu.Unlock()
}

// Snapshot returns a copy of the current params.
func (h *Holder) Snapshot() Params {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params.clone()
}

// Has reports whether name is part of the schema.
func (h *Holder) Has(name string) bool {
	return h.known[name]
}

func (h *Holder) resetLocked() {
	for _, name := range h.params.names {
		h.params.values[name] = unsetValue(name)
	}
	h.params.Page = 1
}

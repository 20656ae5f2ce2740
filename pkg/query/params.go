// Package query holds the user-adjustable query state of a list view:
// free-text search, categorical filters and the current page.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Unset is the sentinel value of a categorical filter that is not applied.
// The empty string is treated the same way. The search filter only treats
// blank text as unset.
const Unset = "all"

// Well-known filter names understood by the CRM backend.
const (
	FilterSearch   = "q"
	FilterCity     = "city_id"
	FilterDistrict = "district_id"
	FilterType     = "type_id"
	FilterPriority = "priority_id"
	FilterCategory = "category_id"
	FilterStatus   = "status"
)

// Request parameter names for pagination.
const (
	ParamPage    = "page"
	ParamPerPage = "per_page"
)

// DefaultPerPage matches the backend's default page size.
const DefaultPerPage = 15

var (
	// ErrUnknownFilter is returned when a filter name is not part of the schema.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page must be >= 1")
)

// IsUnset reports whether v is the unset sentinel.
func IsUnset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == Unset
}

// IsUnsetFor reports whether v leaves the named filter unset. The search
// term is free text, so only a blank value clears it.
func IsUnsetFor(name, v string) bool {
	if name == FilterSearch {
		return strings.TrimSpace(v) == ""
	}
	return IsUnset(v)
}

// unsetValue is the stored value of a cleared filter.
func unsetValue(name string) string {
	if name == FilterSearch {
		return ""
	}
	return Unset
}

// Params is a snapshot of filter values plus pagination.
// Filter order follows the schema declaration order.
type Params struct {
	names   []string
	values  map[string]string
	Page    int
	PerPage int
}

// Get returns the value of a filter, or Unset.
func (p Params) Get(name string) string {
	if v, ok := p.values[name]; ok && !IsUnsetFor(name, v) {
		return v
	}
	return Unset
}

// Names returns the filter names in declaration order.
func (p Params) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Active returns the set filters in declaration order as name/value pairs.
func (p Params) Active() [][2]string {
	var out [][2]string
	for _, name := range p.names {
		if v, ok := p.values[name]; ok && !IsUnsetFor(name, v) {
			out = append(out, [2]string{name, v})
		}
	}
	return out
}

// HasActiveFilters reports whether at least one filter or search term is set.
func (p Params) HasActiveFilters() bool {
	return len(p.Active()) > 0
}

// Encode serializes the params into the outgoing request shape.
// page and per_page are always present; unset filters are omitted.
func (p Params) Encode() url.Values {
	q := url.Values{}
	for _, kv := range p.Active() {
		q.Set(kv[0], strings.TrimSpace(kv[1]))
	}
	q.Set(ParamPage, strconv.Itoa(p.Page))
	q.Set(ParamPerPage, strconv.Itoa(p.PerPage))
	return q
}

// Key returns a canonical, order-stable representation of the params.
//
// Example:
//
//	q=ahmed&city_id=3&page=1&per_page=15
func (p Params) Key() string {
	parts := make([]string, 0, len(p.names)+2)
	for _, kv := range p.Active() {
		parts = append(parts, kv[0]+"="+url.QueryEscape(strings.TrimSpace(kv[1])))
	}
	parts = append(parts,
		fmt.Sprintf("%s=%d", ParamPage, p.Page),
		fmt.Sprintf("%s=%d", ParamPerPage, p.PerPage),
	)
	return strings.Join(parts, "&")
}

// String implements fmt.Stringer.
func (p Params) String() string {
	return p.Key()
}

func (p Params) clone() Params {
	values := make(map[string]string, len(p.values))
	for k, v := range p.values {
		values[k] = v
	}
	return Params{
		names:   p.Names(),
		values:  values,
		Page:    p.Page,
		PerPage: p.PerPage,
	}
}

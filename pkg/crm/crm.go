package crm

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/Sternrassler/crm-client/pkg/collection"
	"github.com/Sternrassler/crm-client/pkg/query"
)

// Entity names.
const (
	EntityBlogs     = "blogs"
	EntityCustomers = "customers"
	EntityOwners    = "owners"
)

// Descriptor is the static description of an entity listing.
type Descriptor struct {
	Name      string
	Endpoints collection.Endpoints
	Filters   []string
	Columns   []string
}

// Schema returns the query schema of the entity with the given page size.
func (d Descriptor) Schema(perPage int) query.Schema {
	return query.Schema{
		Filters:    append([]string(nil), d.Filters...),
		Dependents: query.DefaultDependents(),
		PerPage:    perPage,
	}
}

var descriptors = map[string]Descriptor{
	EntityBlogs: {
		Name:      EntityBlogs,
		Endpoints: collection.Endpoints{Listing: "/blogs", Search: "/blogs/search"},
		Filters:   []string{query.FilterSearch, query.FilterCategory, query.FilterStatus},
		Columns:   []string{"ID", "Title", "Category", "Status", "Published"},
	},
	EntityCustomers: {
		Name:      EntityCustomers,
		Endpoints: collection.Endpoints{Listing: "/customers", Search: "/customers/filter"},
		Filters: []string{
			query.FilterSearch, query.FilterCity, query.FilterDistrict,
			query.FilterType, query.FilterPriority,
		},
		Columns: []string{"ID", "Name", "Phone", "Location", "Type", "Priority"},
	},
	EntityOwners: {
		Name:      EntityOwners,
		Endpoints: collection.Endpoints{Listing: "/property-owners", Search: "/property-owners/search"},
		Filters:   []string{query.FilterSearch, query.FilterCity, query.FilterDistrict},
		Columns:   []string{"ID", "Name", "Phone", "Location", "Properties"},
	},
}

// Lookup returns the descriptor of an entity.
func Lookup(name string) (Descriptor, error) {
	d, ok := descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown entity %q", name)
	}
	return d, nil
}

// Names returns the entity names in sorted order.
func Names() []string {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// options collects controller settings shared by all entities.
type options struct {
	perPage  int
	debounce time.Duration
	lang     language.Tag
	logger   *zerolog.Logger
}

// Option configures an entity controller.
type Option func(*options)

// WithPerPage overrides the page size (default 15).
func WithPerPage(n int) Option {
	return func(o *options) { o.perPage = n }
}

// WithDebounce overrides the search debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithLanguage selects the language of user-facing messages.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) { o.lang = tag }
}

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// NewController builds a controller for the named entity.
func NewController[T Record](name string, source collection.Source[T], opts ...Option) (*collection.Controller[T], error) {
	d, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	o := options{perPage: query.DefaultPerPage, lang: language.English}
	for _, opt := range opts {
		opt(&o)
	}

	return collection.New[T](source, collection.Config[T]{
		Entity:    d.Name,
		Endpoints: d.Endpoints,
		Schema:    d.Schema(o.perPage),
		Debounce:  o.debounce,
		ID:        func(item T) string { return item.Identifier() },
		Language:  o.lang,
		Logger:    o.logger,
	})
}

// NewBlogs creates the blog list controller.
func NewBlogs(source collection.Source[Blog], opts ...Option) (*collection.Controller[Blog], error) {
	return NewController[Blog](EntityBlogs, source, opts...)
}

// NewCustomers creates the customer list controller.
func NewCustomers(source collection.Source[Customer], opts ...Option) (*collection.Controller[Customer], error) {
	return NewController[Customer](EntityCustomers, source, opts...)
}

// NewOwners creates the property owner list controller.
func NewOwners(source collection.Source[Owner], opts ...Option) (*collection.Controller[Owner], error) {
	return NewController[Owner](EntityOwners, source, opts...)
}

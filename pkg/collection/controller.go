package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Sternrassler/crm-client/pkg/debounce"
	"github.com/Sternrassler/crm-client/pkg/logging"
	"github.com/Sternrassler/crm-client/pkg/query"
)

// ErrClosed is returned by mutating calls after Close.
var ErrClosed = errors.New("collection: controller closed")

// Config holds controller configuration.
type Config[T any] struct {
	// Entity names the listing in logs and metrics (e.g. "customers").
	Entity string

	// Endpoints are the listing and search paths of the entity.
	Endpoints Endpoints

	// Schema declares the supported filters and the page size.
	Schema query.Schema

	// Debounce is the quiet period for search input (default: 500ms).
	Debounce time.Duration

	// ID extracts the identifier used for selection. Selection is disabled when nil.
	ID func(T) string

	// Language selects the catalog for user-facing messages (default: English).
	Language language.Tag

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Status is the phase of the fetch state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is an immutable snapshot of a controller, handed to subscribers.
type State[T any] struct {
	Page     Page[T]
	Params   query.Params
	Status   Status
	Loading  bool
	Err      string // localized, shown to the user
	Cause    error  // underlying fetch error
	Selected []string
	Token    uint64
}

// Failed reports whether the last applied fetch failed.
func (s State[T]) Failed() bool {
	return s.Err != ""
}

// Controller coordinates query state, fetches and results for one list view.
//
// Every dispatch takes a fresh token; a response is applied only while its
// token is still the latest one. Close invalidates all outstanding tokens.
type Controller[T any] struct {
	entity    string
	endpoints Endpoints
	source    Source[T]
	idOf      func(T) string
	holder    *query.Holder
	trigger   *debounce.Trigger
	printer   *message.Printer
	logger    zerolog.Logger
	perPage   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	token     uint64
	page      Page[T]
	loading   bool
	errMsg    string
	cause     error
	selection map[string]struct{}
	closed    bool
	version   uint64
	subs      []func(State[T])

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a controller with every filter unset, page 1 and an empty page.
// No fetch is issued until Dispatch (or a mutating call) runs.
func New[T any](source Source[T], cfg Config[T]) (*Controller[T], error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Entity == "" {
		return nil, fmt.Errorf("entity is required")
	}
	if cfg.Endpoints.Listing == "" {
		return nil, fmt.Errorf("listing endpoint is required")
	}
	if cfg.Language == language.Und {
		cfg.Language = language.English
	}

	logger := logging.NewLogger("collection")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("entity", cfg.Entity).Logger()

	holder := query.NewHolder(cfg.Schema)
	perPage := holder.Snapshot().PerPage

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller[T]{
		entity:    cfg.Entity,
		endpoints: cfg.Endpoints,
		source:    source,
		idOf:      cfg.ID,
		holder:    holder,
		printer:   Printer(cfg.Language),
		logger:    logger,
		perPage:   perPage,
		ctx:       ctx,
		cancel:    cancel,
		page:      EmptyPage[T](perPage),
		selection: make(map[string]struct{}),
	}
	c.trigger = debounce.New(cfg.Debounce, func() { c.Dispatch() })

	return c, nil
}

// Subscribe registers fn to receive state snapshots after every change.
// Snapshots are delivered in order; a stale snapshot is never delivered
// after a newer one. fn must not call back into the controller synchronously.
func (c *Controller[T]) Subscribe(fn func(State[T])) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// State returns the current snapshot.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Params returns the current query params.
func (c *Controller[T]) Params() query.Params {
	return c.holder.Snapshot()
}

// Dispatch issues a fetch for the current query state and returns its token.
// Any response to an earlier token is discarded from now on.
// It returns 0 after Close.
func (c *Controller[T]) Dispatch() uint64 {
	// A pending search is covered by this dispatch's snapshot.
	c.trigger.Cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}

	c.token++
	token := c.token
	params := c.holder.Snapshot()
	endpoint, kind := c.endpoints.Select(params.HasActiveFilters())

	c.loading = true
	c.wg.Add(1)
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)

	DispatchesTotal.WithLabelValues(c.entity, kind).Inc()
	c.logger.Debug().
		Uint64("token", token).
		Str("endpoint", endpoint).
		Str("query", params.Key()).
		Msg("Dispatching list fetch")

	go c.fetch(token, endpoint, params)
	return token
}

// fetch runs one request and hands the outcome to the result sink.
func (c *Controller[T]) fetch(token uint64, endpoint string, params query.Params) {
	defer c.wg.Done()

	start := time.Now()
	page, err := c.source.List(c.ctx, endpoint, params.Encode())
	c.complete(token, params, page, err, time.Since(start))
}

// complete applies a fetch outcome if token is still current.
func (c *Controller[T]) complete(token uint64, params query.Params, page Page[T], err error, elapsed time.Duration) {
	c.mu.Lock()
	if c.closed || token != c.token {
		current := c.token
		c.mu.Unlock()

		StaleResponsesTotal.WithLabelValues(c.entity).Inc()
		c.logger.Debug().
			Uint64("token", token).
			Uint64("current", current).
			Msg("Discarding superseded response")
		return
	}

	if err != nil {
		c.page = EmptyPage[T](c.perPage)
		c.errMsg = c.printer.Sprintf(MsgLoadFailed)
		c.cause = err
		c.loading = false
		c.clearSelectionLocked()
		state, version := c.changedLocked()
		c.mu.Unlock()

		ErrorsTotal.WithLabelValues(c.entity).Inc()
		c.logger.Error().
			Err(err).
			Uint64("token", token).
			Str("query", params.Key()).
			Dur("duration", elapsed).
			Msg("List fetch failed")
		c.deliver(state, version)
		return
	}

	// The requested page no longer exists (e.g. rows were deleted since the
	// last count). Move to the last page instead of showing an empty view.
	if page.LastPage >= 1 && page.CurrentPage > page.LastPage && len(page.Items) == 0 && params.Page > 1 {
		// The query changed while this fetch was in flight; its last page
		// belongs to the old result set.
		if c.holder.Snapshot().Key() != params.Key() {
			c.mu.Unlock()
			c.Dispatch()
			return
		}
		err := c.holder.SetPage(page.LastPage)
		c.mu.Unlock()
		if err != nil {
			return
		}
		c.logger.Info().
			Int("requested", params.Page).
			Int("last_page", page.LastPage).
			Msg("Requested page out of range, moving to last page")
		c.Dispatch()
		return
	}

	c.page = page.normalize(c.perPage)
	c.errMsg = ""
	c.cause = nil
	c.loading = false
	c.clearSelectionLocked()
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("token", token).
		Int("items", len(page.Items)).
		Int("total", page.Total).
		Dur("duration", elapsed).
		Msg("List page applied")
	c.deliver(state, version)
}

// SetSearch updates the free-text term and schedules a debounced dispatch.
func (c *Controller[T]) SetSearch(text string) error {
	if err := c.mutate(func() error {
		return c.holder.SetFilter(query.FilterSearch, text)
	}); err != nil {
		return err
	}
	c.trigger.Notify()
	return nil
}

// FlushSearch dispatches a pending debounced search immediately.
func (c *Controller[T]) FlushSearch() {
	c.trigger.Flush()
}

// SetFilter changes a filter without dispatching. Use it to batch several
// changes before a single Dispatch.
func (c *Controller[T]) SetFilter(name, value string) error {
	return c.mutate(func() error {
		return c.holder.SetFilter(name, value)
	})
}

// SetFilterNow changes a filter and dispatches immediately.
// Changing the city also resets the district.
func (c *Controller[T]) SetFilterNow(name, value string) error {
	if err := c.SetFilter(name, value); err != nil {
		return err
	}
	c.Dispatch()
	return nil
}

// ClearAll resets every filter and the page, then dispatches.
func (c *Controller[T]) ClearAll() error {
	if err := c.mutate(func() error {
		c.holder.ClearAll()
		return nil
	}); err != nil {
		return err
	}
	c.Dispatch()
	return nil
}

// GoTo moves to page n and dispatches immediately.
// Pages outside [1, LastPage] are ignored and GoTo reports false.
func (c *Controller[T]) GoTo(n int) bool {
	c.mu.Lock()
	if c.closed || n < 1 || n > c.page.LastPage {
		c.mu.Unlock()
		return false
	}
	if err := c.holder.SetPage(n); err != nil {
		c.mu.Unlock()
		return false
	}
	c.clearSelectionLocked()
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)
	c.Dispatch()
	return true
}

// SetPage sets the page without dispatching and without a bounds check,
// e.g. to restore a deep link before the first load. A page past the end
// is corrected to the last page when the response arrives.
func (c *Controller[T]) SetPage(n int) error {
	return c.mutate(func() error {
		return c.holder.SetPage(n)
	})
}

// Next moves to the following page.
func (c *Controller[T]) Next() bool {
	return c.GoTo(c.holder.Snapshot().Page + 1)
}

// Prev moves to the preceding page.
func (c *Controller[T]) Prev() bool {
	return c.GoTo(c.holder.Snapshot().Page - 1)
}

// Retry re-issues the fetch for the unchanged query state.
func (c *Controller[T]) Retry() uint64 {
	return c.Dispatch()
}

// Toggle flips the selection of the item with the given id.
// Only items on the current page can be selected.
func (c *Controller[T]) Toggle(id string) bool {
	c.mu.Lock()
	if c.closed || c.idOf == nil || !c.onPageLocked(id) {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.selection[id]; ok {
		delete(c.selection, id)
	} else {
		c.selection[id] = struct{}{}
	}
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)
	return true
}

// SelectAll selects every item on the current page, or clears the selection
// when everything is already selected.
func (c *Controller[T]) SelectAll() {
	c.mu.Lock()
	if c.closed || c.idOf == nil {
		c.mu.Unlock()
		return
	}
	if len(c.selection) == len(c.page.Items) && len(c.selection) > 0 {
		c.clearSelectionLocked()
	} else {
		for _, item := range c.page.Items {
			c.selection[c.idOf(item)] = struct{}{}
		}
	}
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)
}

// Selected returns the selected ids in sorted order.
func (c *Controller[T]) Selected() []string {
	return c.State().Selected
}

// ClearSelection empties the selection.
func (c *Controller[T]) ClearSelection() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.clearSelectionLocked()
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)
}

// Wait blocks until every dispatched fetch has completed.
// It must not be called concurrently with Dispatch.
func (c *Controller[T]) Wait() {
	c.wg.Wait()
}

// Close invalidates the current token, cancels pending searches and
// in-flight requests. Responses arriving afterwards are never applied.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.token++
	c.mu.Unlock()

	c.trigger.Stop()
	c.cancel()
}

func (c *Controller[T]) mutate(fn func() error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}
	state, version := c.changedLocked()
	c.mu.Unlock()

	c.deliver(state, version)
	return nil
}

func (c *Controller[T]) onPageLocked(id string) bool {
	for _, item := range c.page.Items {
		if c.idOf(item) == id {
			return true
		}
	}
	return false
}

func (c *Controller[T]) clearSelectionLocked() {
	if len(c.selection) > 0 {
		c.selection = make(map[string]struct{})
	}
}

// changedLocked bumps the state version and returns the snapshot to deliver.
func (c *Controller[T]) changedLocked() (State[T], uint64) {
	c.version++
	return c.snapshotLocked(), c.version
}

func (c *Controller[T]) snapshotLocked() State[T] {
	selected := make([]string, 0, len(c.selection))
	for id := range c.selection {
		selected = append(selected, id)
	}
	sort.Strings(selected)

	items := make([]T, len(c.page.Items))
	copy(items, c.page.Items)
	page := c.page
	page.Items = items

	status := StatusIdle
	switch {
	case c.loading:
		status = StatusLoading
	case c.errMsg != "":
		status = StatusError
	}

	return State[T]{
		Page:     page,
		Params:   c.holder.Snapshot(),
		Status:   status,
		Loading:  c.loading,
		Err:      c.errMsg,
		Cause:    c.cause,
		Selected: selected,
		Token:    c.token,
	}
}

// deliver hands a snapshot to subscribers unless a newer one already went out.
func (c *Controller[T]) deliver(state State[T], version uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if version <= c.delivered {
		return
	}
	c.delivered = version

	c.mu.Lock()
	subs := make([]func(State[T]), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/crm-client/internal/tui"
	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/pagination"
	"github.com/Sternrassler/crm-client/pkg/query"
)

// filterFlag maps a command-line flag onto a backend filter.
type filterFlag struct {
	flag   string
	filter string
	usage  string
}

var filterFlags = []filterFlag{
	{"q", query.FilterSearch, "free-text search"},
	{"city", query.FilterCity, "city id"},
	{"district", query.FilterDistrict, "district id (cleared when --city changes)"},
	{"type", query.FilterType, "customer type id"},
	{"priority", query.FilterPriority, "priority id"},
	{"category", query.FilterCategory, "category id"},
	{"status", query.FilterStatus, "publication status (published, draft)"},
}

// filterValues holds the filter flags registered for one entity command.
type filterValues map[string]*string

func registerFilters(cmd *cobra.Command, d crm.Descriptor) filterValues {
	supported := make(map[string]bool, len(d.Filters))
	for _, f := range d.Filters {
		supported[f] = true
	}

	values := filterValues{}
	for _, ff := range filterFlags {
		if supported[ff.filter] {
			values[ff.filter] = cmd.Flags().String(ff.flag, "", ff.usage)
		}
	}
	return values
}

type filterSetter interface {
	SetFilter(name, value string) error
}

// apply sets the given filters in schema order, so a city is always set
// before its district.
func (v filterValues) apply(d crm.Descriptor, s filterSetter) error {
	for _, name := range d.Filters {
		p, ok := v[name]
		if !ok || *p == "" {
			continue
		}
		if err := s.SetFilter(name, *p); err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
	}
	return nil
}

// byEntity runs the function matching the entity type.
func byEntity(name string, blogs, customers, owners func() error) error {
	switch name {
	case crm.EntityBlogs:
		return blogs()
	case crm.EntityCustomers:
		return customers()
	case crm.EntityOwners:
		return owners()
	default:
		return fmt.Errorf("unknown entity %q", name)
	}
}

func newEntityCmd(a *app, name string) *cobra.Command {
	d, _ := crm.Lookup(name)

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("List, export or browse %s", name),
	}
	cmd.AddCommand(newListCmd(a, d), newExportCmd(a, d), newBrowseCmd(a, d))
	return cmd
}

func newListCmd(a *app, d crm.Descriptor) *cobra.Command {
	var (
		page   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Print one page of %s", d.Name),
		Args:  cobra.NoArgs,
	}
	filters := registerFilters(cmd, d)
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "output format: table, json, yaml")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := validateFormat(output, FormatTable, FormatJSON, FormatYAML); err != nil {
			return err
		}
		if page < 1 {
			return fmt.Errorf("--page must be >= 1 (got %d)", page)
		}
		opts := listOptions{filters: filters, page: page, output: output}
		return byEntity(d.Name,
			func() error { return runList[crm.Blog](cmd, a, d, opts) },
			func() error { return runList[crm.Customer](cmd, a, d, opts) },
			func() error { return runList[crm.Owner](cmd, a, d, opts) },
		)
	}
	return cmd
}

type listOptions struct {
	filters filterValues
	page    int
	output  string
}

func runList[T crm.Record](cmd *cobra.Command, a *app, d crm.Descriptor, opts listOptions) error {
	c, cleanup, err := a.newClient()
	if err != nil {
		return err
	}
	defer cleanup()

	ctrl, err := crm.NewController[T](d.Name, client.NewListSource[T](c), a.controllerOptions()...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := opts.filters.apply(d, ctrl); err != nil {
		return err
	}
	if err := ctrl.SetPage(opts.page); err != nil {
		return err
	}

	ctrl.Dispatch()
	ctrl.Wait()

	state := ctrl.State()
	if state.Failed() {
		return fmt.Errorf("%s: %w", state.Err, state.Cause)
	}
	return writePage(cmd.OutOrStdout(), opts.output, d, state.Page, a.cfg.Language())
}

func newExportCmd(a *app, d crm.Descriptor) *cobra.Command {
	var (
		output      string
		concurrency int
		maxPages    int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: fmt.Sprintf("Fetch every page of %s", d.Name),
		Args:  cobra.NoArgs,
	}
	filters := registerFilters(cmd, d)
	cmd.Flags().StringVarP(&output, "output", "o", FormatJSON, "output format: json, yaml, table")
	cmd.Flags().IntVar(&concurrency, "concurrency", pagination.DefaultConfig().MaxConcurrency, "pages fetched in parallel")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 = all)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := validateFormat(output, FormatJSON, FormatYAML, FormatTable); err != nil {
			return err
		}
		opts := exportOptions{
			filters: filters,
			output:  output,
			fetch: pagination.Config{
				MaxConcurrency: concurrency,
				Timeout:        a.cfg.API.Timeout,
				MaxPages:       maxPages,
			},
		}
		return byEntity(d.Name,
			func() error { return runExport[crm.Blog](cmd, a, d, opts) },
			func() error { return runExport[crm.Customer](cmd, a, d, opts) },
			func() error { return runExport[crm.Owner](cmd, a, d, opts) },
		)
	}
	return cmd
}

type exportOptions struct {
	filters filterValues
	output  string
	fetch   pagination.Config
}

func runExport[T crm.Record](cmd *cobra.Command, a *app, d crm.Descriptor, opts exportOptions) error {
	holder := query.NewHolder(d.Schema(a.cfg.List.PerPage))
	if err := opts.filters.apply(d, holder); err != nil {
		return err
	}
	params := holder.Snapshot()
	endpoint, _ := d.Endpoints.Select(params.HasActiveFilters())

	c, cleanup, err := a.newClient()
	if err != nil {
		return err
	}
	defer cleanup()

	fetcher := pagination.NewBatchFetcher[T](client.NewListSource[T](c), opts.fetch)
	items, fetchErr := fetcher.FetchAll(cmd.Context(), endpoint, params.Encode())
	if fetchErr != nil && len(items) == 0 {
		return fetchErr
	}

	if err := writeItems(cmd.OutOrStdout(), opts.output, d, items); err != nil {
		return err
	}
	if fetchErr != nil {
		return fmt.Errorf("export incomplete (%d %s written): %w", len(items), d.Name, fetchErr)
	}

	a.logger.Info().Str("entity", d.Name).Int("items", len(items)).Msg("Export complete")
	return nil
}

func newBrowseCmd(a *app, d crm.Descriptor) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: fmt.Sprintf("Browse %s interactively", d.Name),
		Args:  cobra.NoArgs,
	}
	filters := registerFilters(cmd, d)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return byEntity(d.Name,
			func() error { return runBrowse[crm.Blog](cmd, a, d, filters) },
			func() error { return runBrowse[crm.Customer](cmd, a, d, filters) },
			func() error { return runBrowse[crm.Owner](cmd, a, d, filters) },
		)
	}
	return cmd
}

func runBrowse[T crm.Record](cmd *cobra.Command, a *app, d crm.Descriptor, filters filterValues) error {
	c, cleanup, err := a.newClient()
	if err != nil {
		return err
	}
	defer cleanup()

	ctrl, err := crm.NewController[T](d.Name, client.NewListSource[T](c), a.controllerOptions()...)
	if err != nil {
		return err
	}
	if err := filters.apply(d, ctrl); err != nil {
		ctrl.Close()
		return err
	}

	return tui.Run(cmd.Context(), ctrl, d, a.cfg.Language())
}

// Package pagination fetches every page of a CRM listing in parallel, for
// exports that need the full result set rather than one page.
//
// Example usage:
//
//	source := client.NewListSource[crm.Customer](c)
//	fetcher := pagination.NewBatchFetcher[crm.Customer](source, pagination.DefaultConfig())
//	customers, err := fetcher.FetchAll(ctx, "/customers/filter", params.Encode())
//
// The batch fetcher:
//   - Fetches the first page to learn last_page
//   - Fetches pages 2..last_page with bounded concurrency (errgroup)
//   - Returns items in page order
//   - Returns partial data together with the first error
package pagination

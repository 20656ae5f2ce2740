package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/crm-client/pkg/collection"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// Keep it below the backend's per-second throttle.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages caps the number of pages fetched (0 = no cap)
	MaxPages int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// BatchFetcher fetches every page of a listing in parallel
type BatchFetcher[T any] struct {
	source collection.Source[T]
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](source collection.Source[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher[T]{
		source: source,
		config: config,
	}
}

// FetchAll fetches page 1 to learn the page count, then the remaining pages
// in parallel. Items are returned in page order. On failure the items of
// the pages that did arrive are returned together with the error.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, endpoint string, base url.Values) ([]T, error) {
	start := time.Now()

	first, err := bf.fetch(ctx, endpoint, base, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages := max(first.LastPage, 1)
	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		log.Warn().
			Str("endpoint", endpoint).
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Page count exceeds cap, truncating export")
		totalPages = bf.config.MaxPages
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Int("total_items", first.Total).
		Msg("Starting parallel page fetch")

	// Single page optimization
	if totalPages == 1 {
		log.Info().
			Str("endpoint", endpoint).
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return first.Items, nil
	}

	// Keyed by page number; the page count comes from the backend and is
	// not trusted for sizing.
	pages := map[int][]T{1: first.Items}

	var (
		mu      sync.Mutex
		fetched = 1
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for pageNum := 2; pageNum <= totalPages; pageNum++ {
		g.Go(func() error {
			page, err := bf.fetch(gctx, endpoint, base, pageNum)
			if err != nil {
				log.Warn().
					Err(err).
					Int("page", pageNum).
					Msg("Page fetch failed")
				return fmt.Errorf("page %d: %w", pageNum, err)
			}

			mu.Lock()
			pages[pageNum] = page.Items
			fetched++
			if fetched%10 == 0 {
				log.Info().
					Int("fetched", fetched).
					Int("total", totalPages).
					Float64("progress_pct", float64(fetched)/float64(totalPages)*100).
					Msg("Fetch progress")
			}
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()

	var items []T
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		items = append(items, pages[pageNum]...)
	}

	if waitErr != nil {
		log.Warn().
			Err(waitErr).
			Int("fetched_pages", fetched).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return items, fmt.Errorf("worker error (partial data: %d/%d pages): %w", fetched, totalPages, waitErr)
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("pages", fetched).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}

// fetch requests one page with the per-page timeout.
func (bf *BatchFetcher[T]) fetch(ctx context.Context, endpoint string, base url.Values, pageNum int) (collection.Page[T], error) {
	q := url.Values{}
	for k, v := range base {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(pageNum))

	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.source.List(pageCtx, endpoint, q)
}

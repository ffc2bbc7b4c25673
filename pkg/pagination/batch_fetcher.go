package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/rs/zerolog/log"
)

// ErrPageLimit is returned when a collection is longer than Config.MaxPages.
var ErrPageLimit = errors.New("page limit reached")

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the number of pages fetched in parallel per window.
	// Keep it at or below the client's requests-per-second budget.
	MaxConcurrency int
	// PageSize is the limit requested per page
	PageSize int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages bounds the walk of a collection that never ends
	MaxPages int
}

// DefaultConfig returns safe default configuration for the listing API
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PageSize:       50,
		Timeout:        15 * time.Second,
		MaxPages:       400,
	}
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	// PageNumber is 0-based
	PageNumber int
	Items      []catalog.Item
	Error      error
}

// BatchFetcher walks a whole offset/limit collection in parallel windows
type BatchFetcher struct {
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		config: config,
	}
}

// FetchAll fetches every item of source in collection order.
// Pages are fetched MaxConcurrency at a time; the walk stops at the first page
// shorter than PageSize. On error the items before the failed page are
// returned together with the error.
func (bf *BatchFetcher) FetchAll(ctx context.Context, source PageSource) ([]catalog.Item, error) {
	start := time.Now()
	var items []catalog.Item

	log.Info().
		Int("page_size", bf.config.PageSize).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	for first := 0; first < bf.config.MaxPages; first += bf.config.MaxConcurrency {
		last := min(first+bf.config.MaxConcurrency, bf.config.MaxPages)

		for _, result := range bf.fetchWindow(ctx, source, first, last) {
			if result.Error != nil {
				log.Warn().
					Err(result.Error).
					Int("page", result.PageNumber).
					Int("fetched_items", len(items)).
					Msg("Page fetch failed - returning partial results")
				return items, fmt.Errorf("fetch page %d (partial data: %d items): %w", result.PageNumber, len(items), result.Error)
			}

			items = append(items, result.Items...)

			if len(result.Items) < bf.config.PageSize {
				log.Info().
					Int("pages", result.PageNumber+1).
					Int("items", len(items)).
					Dur("duration", time.Since(start)).
					Msg("Fetch complete")
				return items, nil
			}
		}

		// Progress logging every 50 pages
		if last%50 == 0 {
			log.Info().
				Int("fetched_pages", last).
				Int("items", len(items)).
				Msg("Fetch progress")
		}
	}

	return items, fmt.Errorf("%w: %d pages of %d items", ErrPageLimit, bf.config.MaxPages, bf.config.PageSize)
}

// fetchWindow fetches pages [first, last) with a worker pool.
// Results are indexed by page, so the returned slice is in page order.
func (bf *BatchFetcher) fetchWindow(ctx context.Context, source PageSource, first, last int) []PageResult {
	results := make([]PageResult, last-first)

	pageQueue := make(chan int, last-first)
	for page := first; page < last; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < last-first; i++ {
		wg.Add(1)
		go bf.worker(ctx, source, first, pageQueue, results, &wg, i)
	}
	wg.Wait()

	return results
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, source PageSource, first int, pageQueue <-chan int, results []PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for pageNum := range pageQueue {
		result := PageResult{PageNumber: pageNum}

		// Check context cancellation
		if err := ctx.Err(); err != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Worker stopping (context cancelled)")
			result.Error = err
			results[pageNum-first] = result
			continue
		}

		// Fetch page with timeout
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		result.Items, result.Error = source.FetchPage(pageCtx, pageNum*bf.config.PageSize, bf.config.PageSize)
		cancel()

		results[pageNum-first] = result
	}
}

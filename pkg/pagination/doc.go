// Package pagination walks offset/limit collections of the listing API.
//
// The listing API has no total count: a collection ends at the first page that
// comes back shorter than the requested limit. Two helpers build on that:
//
// Paginator fetches exactly one page per navigation action and decides whether a
// next page exists, either by probing the following window or by comparing the
// page length to the page size:
//
//	p, _ := pagination.NewPaginator(12, pagination.StrategyProbe)
//	page, err := p.Fetch(ctx, client.Products(2), 3)
//
// BatchFetcher walks a whole collection with a bounded worker pool, fetching
// windows of pages in parallel until a short page is seen:
//
//	fetcher := pagination.NewBatchFetcher(pagination.DefaultConfig())
//	items, err := fetcher.FetchAll(ctx, client.Products(0))
//
// Results are always returned in collection order.
package pagination

package pagination

import (
	"context"
	"fmt"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/rs/zerolog/log"
)

// PageSource fetches one offset/limit window of a collection.
// catalog.ProductSource implements it.
type PageSource interface {
	FetchPage(ctx context.Context, offset, limit int) ([]catalog.Item, error)
}

// Strategy decides how the existence of a next page is detected.
type Strategy string

const (
	// StrategyProbe fetches the following window and reports a next page when it is non-empty.
	StrategyProbe Strategy = "probe"

	// StrategyFullPage reports a next page when the current page is full.
	// One fetch per page; an exactly full last page shows a next link that leads to an empty page.
	StrategyFullPage Strategy = "full_page"
)

// ParseStrategy converts a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyProbe, StrategyFullPage:
		return Strategy(s), nil
	case "":
		return StrategyProbe, nil
	default:
		return "", fmt.Errorf("unknown has-next strategy %q (want %q or %q)", s, StrategyProbe, StrategyFullPage)
	}
}

// Page is one page of a paginated listing.
type Page struct {
	// Number is 1-based
	Number  int
	Size    int
	Items   []catalog.Item
	HasNext bool
	HasPrev bool
}

// Paginator fetches pages of a fixed size.
type Paginator struct {
	size     int
	strategy Strategy
}

// NewPaginator creates a paginator for pages of size items.
func NewPaginator(size int, strategy Strategy) (*Paginator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("page size must be > 0 (got %d)", size)
	}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	return &Paginator{size: size, strategy: strategy}, nil
}

// Size returns the page size.
func (p *Paginator) Size() int {
	return p.size
}

// Strategy returns the has-next strategy in use.
func (p *Paginator) Strategy() Strategy {
	return p.strategy
}

// Offset returns the offset of the 1-based page number. Numbers below 1 map to page 1.
func (p *Paginator) Offset(number int) int {
	if number < 1 {
		number = 1
	}
	return (number - 1) * p.size
}

// Fetch loads page number from source.
// With StrategyProbe the following window is fetched as well. When that second
// fetch fails the page is still returned, without a next link.
func (p *Paginator) Fetch(ctx context.Context, source PageSource, number int) (*Page, error) {
	if number < 1 {
		number = 1
	}
	offset := p.Offset(number)

	items, err := source.FetchPage(ctx, offset, p.size)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", number, err)
	}

	page := &Page{
		Number:  number,
		Size:    p.size,
		Items:   items,
		HasPrev: number > 1,
	}

	switch p.strategy {
	case StrategyFullPage:
		page.HasNext = len(items) == p.size
	default:
		// A short page cannot have a successor; skip the probe.
		if len(items) < p.size {
			break
		}
		next, err := source.FetchPage(ctx, offset+p.size, p.size)
		if err != nil {
			log.Warn().
				Err(err).
				Str("component", "paginator").
				Int("page", number).
				Int("offset", offset+p.size).
				Msg("Next page check failed - hiding next link")
			break
		}
		page.HasNext = len(next) > 0
	}

	return page, nil
}

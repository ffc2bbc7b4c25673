package listing

import (
	"context"
	"strings"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// StaticCategories is the fixed chip list used when the category endpoint is unavailable.
var StaticCategories = []string{AllCategories, "Clothes", "Electronics", "Furniture", "Toys", "Books", "Sports"}

// ProductCounter fetches a window of products. catalog.Client implements it.
type ProductCounter interface {
	ListProducts(ctx context.Context, q catalog.Query) ([]catalog.Item, error)
}

// Chip is one entry of the category filter bar.
type Chip struct {
	Name   string
	Active bool

	// Query the chip navigates to
	Query Query
}

// Href returns the link target of the chip relative to the listing path.
func (c Chip) Href() string {
	if u := c.Query.URL(); u != "" {
		return u
	}
	return "?"
}

// ChipOptions configures Chips.
type ChipOptions struct {
	// Current navigation state; its category is marked active
	Current Query

	// HideEmpty drops categories without products
	HideEmpty bool

	// MaxConcurrency bounds the emptiness probes (default 4)
	MaxConcurrency int
}

// Chips builds the filter bar: All first, then categories in the given order.
//
// With HideEmpty each category is probed with a one-item window and dropped
// when it has no products. A failed probe keeps the chip.
func Chips(ctx context.Context, categories []catalog.Category, counter ProductCounter, opts ChipOptions) []Chip {
	keep := make([]bool, len(categories))
	for i := range keep {
		keep[i] = true
	}

	if opts.HideEmpty && counter != nil && len(categories) > 0 {
		limit := opts.MaxConcurrency
		if limit <= 0 {
			limit = 4
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, c := range categories {
			g.Go(func() error {
				items, err := counter.ListProducts(gctx, catalog.Query{Offset: 0, Limit: 1, CategoryID: c.ID})
				if err != nil {
					log.Warn().
						Err(err).
						Str("component", "listing").
						Str("category", c.Name).
						Msg("Category probe failed - keeping chip")
					return nil
				}
				keep[i] = len(items) > 0
				return nil
			})
		}
		_ = g.Wait()
	}

	chips := []Chip{newChip(AllCategories, opts.Current)}
	for i, c := range categories {
		if !keep[i] || strings.EqualFold(c.Name, AllCategories) {
			continue
		}
		chips = append(chips, newChip(c.Name, opts.Current))
	}
	return chips
}

// StaticChips builds the filter bar from StaticCategories.
func StaticChips(current Query) []Chip {
	chips := make([]Chip, 0, len(StaticCategories))
	for _, name := range StaticCategories {
		chips = append(chips, newChip(name, current))
	}
	return chips
}

func newChip(name string, current Query) Chip {
	active := strings.EqualFold(name, current.Category) ||
		(name == AllCategories && current.IsAll())
	return Chip{
		Name:   name,
		Active: active,
		Query:  current.WithCategory(name),
	}
}

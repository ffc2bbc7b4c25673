// Package listing holds the navigation state of the storefront listing: the
// selected category, the page number, and the category chips of the filter bar.
package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront/pkg/catalog"
)

// AllCategories is the chip that removes the category filter.
const AllCategories = "All"

// URL query parameter names.
const (
	ParamCategory = "category"
	ParamPage     = "page"
)

// ErrUnknownCategory is returned when a category name matches no category.
var ErrUnknownCategory = errors.New("unknown category")

// Query is the navigation state of a listing view. It is fully determined by
// the URL, so views are bookmarkable and shareable.
type Query struct {
	// Category name, AllCategories for no filter
	Category string

	// Page is 1-based
	Page int
}

// DefaultQuery is the first page of all categories.
func DefaultQuery() Query {
	return Query{Category: AllCategories, Page: 1}
}

// ParseQuery reads the navigation state from URL query parameters.
// A missing category means All; a missing or invalid page means 1.
func ParseQuery(values url.Values) Query {
	q := DefaultQuery()

	if c := strings.TrimSpace(values.Get(ParamCategory)); c != "" {
		q.Category = c
	}

	if n, err := strconv.Atoi(values.Get(ParamPage)); err == nil && n > 0 {
		q.Page = n
	}

	return q
}

// IsAll reports whether the query is unfiltered.
func (q Query) IsAll() bool {
	return q.Category == "" || strings.EqualFold(q.Category, AllCategories)
}

// WithCategory selects a category. Changing the filter starts over at page 1.
func (q Query) WithCategory(name string) Query {
	if name == "" {
		name = AllCategories
	}
	return Query{Category: name, Page: 1}
}

// WithPage selects a page of the current category. Numbers below 1 select page 1.
func (q Query) WithPage(n int) Query {
	if n < 1 {
		n = 1
	}
	q.Page = n
	return q
}

// Values encodes the query as URL parameters. Defaults are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if !q.IsAll() {
		v.Set(ParamCategory, q.Category)
	}
	if q.Page > 1 {
		v.Set(ParamPage, strconv.Itoa(q.Page))
	}
	return v
}

// URL returns the query string form of q with a leading "?", or "" for the default view.
func (q Query) URL() string {
	if enc := q.Values().Encode(); enc != "" {
		return "?" + enc
	}
	return ""
}

// FindCategory looks up a category by name, case-insensitively.
func FindCategory(categories []catalog.Category, name string) (catalog.Category, bool) {
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return catalog.Category{}, false
}

// Resolve maps the navigation state to the catalog window it shows.
func Resolve(q Query, categories []catalog.Category, pageSize int) (catalog.Query, error) {
	if pageSize <= 0 {
		return catalog.Query{}, fmt.Errorf("page size must be > 0 (got %d)", pageSize)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}

	cq := catalog.Query{
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	}

	if !q.IsAll() {
		c, ok := FindCategory(categories, q.Category)
		if !ok {
			return catalog.Query{}, fmt.Errorf("%w: %q", ErrUnknownCategory, q.Category)
		}
		cq.CategoryID = c.ID
	}

	return cq, nil
}

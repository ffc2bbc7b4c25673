package catalog

import "context"

// ProductSource fetches offset/limit windows of one category's products.
// It satisfies the page source interfaces of the loader and pagination packages.
type ProductSource struct {
	client     *Client
	categoryID int
}

// Products returns a page source for categoryID. Zero selects all categories.
func (c *Client) Products(categoryID int) ProductSource {
	return ProductSource{client: c, categoryID: categoryID}
}

// CategoryID returns the category the source is bound to.
func (s ProductSource) CategoryID() int {
	return s.categoryID
}

// FetchPage fetches limit products starting at offset.
func (s ProductSource) FetchPage(ctx context.Context, offset, limit int) ([]Item, error) {
	return s.client.ListProducts(ctx, Query{Offset: offset, Limit: limit, CategoryID: s.categoryID})
}

package catalog

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Item is a product as displayed on a listing card.
type Item struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	CategoryName string  `json:"categoryName"`
	ImageURL     string  `json:"imageUrl,omitempty"`
}

// Category is a product category offered by the listing API.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Query selects one offset/limit window of the product collection.
type Query struct {
	Offset int
	Limit  int

	// CategoryID restricts the window to one category. Zero means all categories.
	CategoryID int
}

// Values encodes the query as URL parameters understood by the products endpoint.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("offset", strconv.Itoa(q.Offset))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.CategoryID > 0 {
		v.Set("categoryId", strconv.Itoa(q.CategoryID))
	}
	return v
}

// productRecord is the wire shape of a product. The demo API has two flavours:
// one carries an "images" array, the other a single "image" string.
type productRecord struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Price    float64  `json:"price"`
	Images   []string `json:"images"`
	Image    string   `json:"image"`
	Category struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"category"`
}

func (r productRecord) toItem() Item {
	item := Item{
		ID:           r.ID,
		Title:        r.Title,
		Price:        r.Price,
		CategoryName: r.Category.Name,
	}
	if len(r.Images) > 0 {
		item.ImageURL = cleanImageURL(r.Images[0])
	}
	if item.ImageURL == "" {
		item.ImageURL = cleanImageURL(r.Image)
	}
	return item
}

// cleanImageURL strips the stray JSON brackets and quotes some records carry,
// e.g. `["https://i.imgur.com/x.jpeg"`.
func cleanImageURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `[]"`)
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return ""
	}
	return s
}

// decodeProducts parses a products response body.
func decodeProducts(data []byte) ([]Item, error) {
	var records []productRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, r.toItem())
	}
	return items, nil
}

// decodeCategories parses a categories response body.
func decodeCategories(data []byte) ([]Category, error) {
	var categories []Category
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

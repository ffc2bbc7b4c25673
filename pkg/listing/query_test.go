package listing

import (
	"net/url"
	"testing"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCategories = []catalog.Category{
	{ID: 1, Name: "Clothes"},
	{ID: 2, Name: "Electronics"},
	{ID: 3, Name: "Furniture"},
	{ID: 4, Name: "Shoes"},
	{ID: 5, Name: "Miscellaneous"},
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{"empty", "", Query{Category: "All", Page: 1}},
		{"category only", "category=Electronics", Query{Category: "Electronics", Page: 1}},
		{"category and page", "category=Clothes&page=3", Query{Category: "Clothes", Page: 3}},
		{"invalid page", "page=abc", Query{Category: "All", Page: 1}},
		{"zero page", "page=0", Query{Category: "All", Page: 1}},
		{"negative page", "page=-2", Query{Category: "All", Page: 1}},
		{"blank category", "category=%20", Query{Category: "All", Page: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ParseQuery(values))
		})
	}
}

func TestQuery_WithCategoryResetsPage(t *testing.T) {
	q := Query{Category: "All", Page: 3}

	next := q.WithCategory("Electronics")

	assert.Equal(t, Query{Category: "Electronics", Page: 1}, next)
	assert.Equal(t, Query{Category: "All", Page: 1}, next.WithCategory(""))
}

func TestQuery_WithPage(t *testing.T) {
	q := Query{Category: "Clothes", Page: 1}

	assert.Equal(t, Query{Category: "Clothes", Page: 4}, q.WithPage(4))
	assert.Equal(t, Query{Category: "Clothes", Page: 1}, q.WithPage(0))
}

func TestQuery_Values(t *testing.T) {
	assert.Equal(t, "", DefaultQuery().Values().Encode())
	assert.Equal(t, "", DefaultQuery().URL())
	assert.Equal(t, "page=2", Query{Category: "All", Page: 2}.Values().Encode())
	assert.Equal(t, "category=Electronics", Query{Category: "Electronics", Page: 1}.Values().Encode())
	assert.Equal(t, "?category=Clothes&page=3", Query{Category: "Clothes", Page: 3}.URL())

	// Round trip
	q := Query{Category: "Furniture", Page: 5}
	assert.Equal(t, q, ParseQuery(q.Values()))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		want    catalog.Query
		wantErr error
	}{
		{
			name:  "all first page",
			query: Query{Category: "All", Page: 1},
			want:  catalog.Query{Offset: 0, Limit: 12},
		},
		{
			name:  "all third page",
			query: Query{Category: "All", Page: 3},
			want:  catalog.Query{Offset: 24, Limit: 12},
		},
		{
			name:  "category filter",
			query: Query{Category: "Electronics", Page: 2},
			want:  catalog.Query{Offset: 12, Limit: 12, CategoryID: 2},
		},
		{
			name:  "case insensitive",
			query: Query{Category: "electronics", Page: 1},
			want:  catalog.Query{Offset: 0, Limit: 12, CategoryID: 2},
		},
		{
			name:    "unknown category",
			query:   Query{Category: "Toys", Page: 1},
			wantErr: ErrUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.query, testCategories, 12)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_CategoryChangeFromPageThree(t *testing.T) {
	q := Query{Category: "All", Page: 3}

	q = q.WithCategory("Electronics")
	got, err := Resolve(q, testCategories, 12)
	require.NoError(t, err)

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 2, got.CategoryID)
	assert.Equal(t, 0, got.Offset)
	assert.Equal(t, "categoryId=2&limit=12&offset=0", got.Values().Encode())
}

func TestResolve_InvalidPageSize(t *testing.T) {
	_, err := Resolve(DefaultQuery(), testCategories, 0)
	assert.Error(t, err)
}

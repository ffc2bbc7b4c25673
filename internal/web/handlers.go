package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/listing"
	"github.com/Sternrassler/storefront/pkg/loader"
	"github.com/Sternrassler/storefront/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// LoaderStateHeader reports the loader state after a trigger.
const LoaderStateHeader = "X-Loader-State"

// Loader states reported in LoaderStateHeader.
const (
	StateMore    = "more"    // more items may follow
	StateDone    = "done"    // list exhausted
	StateLoading = "loading" // a fetch is already in flight
	StateFailed  = "failed"  // the fetch failed, list unchanged
)

// statusFor maps a listing failure to the status of the page showing it.
// Upstream error statuses and unknown categories are "not found"; transport
// and decode failures are a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.Is(err, listing.ErrUnknownCategory), catalog.IsStatusError(err):
		return http.StatusNotFound
	case errors.Is(err, ratelimit.ErrBlocked):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) failPage(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg(msg)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	s.renderError(w, r, status, msg)
}

// resolveCategory returns the category id of q and the chips of the filter bar.
// When the category list cannot be fetched an unfiltered view still renders
// with the static chips; a filtered view fails.
func (s *Server) resolveCategory(ctx context.Context, q listing.Query) (int, []listing.Chip, error) {
	categories, err := s.client.ListCategories(ctx)
	if err != nil {
		if !q.IsAll() {
			return 0, nil, err
		}
		s.logger.Warn().Err(err).Msg("Category list unavailable - using static chips")
		return 0, listing.StaticChips(q), nil
	}

	cq, err := listing.Resolve(q, categories, s.opts.PageSize)
	if err != nil {
		return 0, nil, err
	}

	chips := listing.Chips(ctx, categories, s.client, listing.ChipOptions{
		Current:   q,
		HideEmpty: s.opts.HideEmptyCategories,
	})
	return cq.CategoryID, chips, nil
}

// handleIndex renders one page of the paginated listing.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := listing.ParseQuery(r.URL.Query())

	categoryID, chips, err := s.resolveCategory(r.Context(), q)
	if err != nil {
		s.failPage(w, r, err, "Category not available")
		return
	}

	page, err := s.paginator.Fetch(r.Context(), s.client.Products(categoryID), q.Page)
	if err != nil {
		s.failPage(w, r, err, "Products not available")
		return
	}

	data := pageData{
		Title:      "Shop",
		Nav:        "shop",
		Chips:      chips,
		Items:      page.Items,
		PageNumber: page.Number,
	}
	if page.HasPrev {
		data.PrevURL = "/" + q.WithPage(page.Number-1).URL()
	}
	if page.HasNext {
		data.NextURL = "/" + q.WithPage(page.Number+1).URL()
	}

	s.render(w, r, http.StatusOK, "index", data)
}

// handleFeed renders the first page of an infinite-scroll feed and registers
// the loader that serves the following pages.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := listing.ParseQuery(r.URL.Query()).WithPage(1)

	categoryID, chips, err := s.resolveCategory(r.Context(), q)
	if err != nil {
		s.failPage(w, r, err, "Category not available")
		return
	}

	initial, err := s.client.ListProducts(r.Context(), catalog.Query{
		Offset:     0,
		Limit:      s.opts.PageSize,
		CategoryID: categoryID,
	})
	if err != nil {
		s.failPage(w, r, err, "Products not available")
		return
	}

	opts := []loader.Option{
		loader.WithFetchTimeout(s.opts.FetchTimeout),
		loader.WithLogger(s.logger.With().Str("component", "loader").Logger()),
	}
	if s.opts.HasMoreFromInitial {
		opts = append(opts, loader.WithHasMoreFromInitial())
	}

	l, err := loader.New(s.client.Products(categoryID), initial, s.opts.PageSize, opts...)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "Feed not available")
		return
	}

	view := s.views.Create(q, l)
	hlog.FromRequest(r).Debug().
		Str("view_id", view.ID).
		Str("category", q.Category).
		Int("initial", len(initial)).
		Msg("Feed view created")

	s.render(w, r, http.StatusOK, "feed", pageData{
		Title:   "Feed",
		Nav:     "feed",
		Chips:   chips,
		Items:   initial,
		ViewID:  view.ID,
		MoreURL: "/feed/" + view.ID + "/more",
		HasMore: l.Snapshot().HasMore,
	})
}

// handleMore is the visibility signal of a feed: the sentinel came into view.
func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")

	view, ok := s.views.Get(viewID)
	if !ok {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}

	result, err := view.Loader.Load(r.Context())
	switch result.Outcome {
	case loader.OutcomeLoaded:
		state := StateMore
		if !result.HasMore {
			state = StateDone
		}
		w.Header().Set(LoaderStateHeader, state)
		s.render(w, r, http.StatusOK, "cards", result.Items)

	case loader.OutcomeFailed:
		hlog.FromRequest(r).Warn().
			Err(err).
			Str("view_id", viewID).
			Int("offset", result.Offset).
			Msg("Loading more products failed")
		w.Header().Set(LoaderStateHeader, StateFailed)
		w.WriteHeader(http.StatusNoContent)

	default:
		state := StateLoading
		if !result.HasMore {
			state = StateDone
		}
		w.Header().Set(LoaderStateHeader, state)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDeleteView drops a feed when the page goes away.
func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if !s.views.Delete(chi.URLParam(r, "viewID")) {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIProducts returns one window of products as JSON.
func (s *Server) handleAPIProducts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := catalog.Query{Offset: 0, Limit: s.opts.PageSize}
	for _, p := range []struct {
		name   string
		dst    *int
		lowest int
	}{
		{"offset", &q.Offset, 0},
		{"limit", &q.Limit, 1},
		{"categoryId", &q.CategoryID, 0},
	} {
		v := params.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < p.lowest {
			respondError(w, http.StatusBadRequest, "invalid "+p.name)
			return
		}
		*p.dst = n
	}

	items, err := s.client.ListProducts(r.Context(), q)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Product listing failed")
		respondError(w, statusFor(err), "products not available")
		return
	}

	respondJSON(w, http.StatusOK, items)
}

// handleAPICategories returns all categories as JSON.
func (s *Server) handleAPICategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.client.ListCategories(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Category listing failed")
		respondError(w, statusFor(err), "categories not available")
		return
	}

	respondJSON(w, http.StatusOK, categories)
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

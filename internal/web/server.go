// Package web serves the storefront: the paginated listing, the infinite-scroll
// feed with its trigger endpoint, a JSON pass-through of the catalog, and
// health and metrics endpoints.
package web

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/logging"
	"github.com/Sternrassler/storefront/pkg/metrics"
	"github.com/Sternrassler/storefront/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_http_requests_total",
	Help: "HTTP requests served by route and status",
}, []string{"route", "status"})

// Options configures the web host.
type Options struct {
	// PageSize is the number of products per page and per loader fetch
	PageSize int

	// HasNext selects how the paginated view detects a next page
	HasNext pagination.Strategy

	// HideEmptyCategories drops chips of categories without products
	HideEmptyCategories bool

	// HasMoreFromInitial ends a feed whose first page is short without another fetch
	HasMoreFromInitial bool

	// FetchTimeout bounds each loader fetch
	FetchTimeout time.Duration

	// ViewTTL drops feeds idle for longer
	ViewTTL time.Duration

	// AllowedOrigins for CORS on /api
	AllowedOrigins []string

	// Ready reports readiness, e.g. a Redis ping (optional)
	Ready func(ctx context.Context) error

	Logger *zerolog.Logger
}

// DefaultOptions returns the default web host options.
func DefaultOptions() Options {
	return Options{
		PageSize:       12,
		HasNext:        pagination.StrategyProbe,
		FetchTimeout:   15 * time.Second,
		ViewTTL:        30 * time.Minute,
		AllowedOrigins: []string{"*"},
	}
}

// Server holds the HTTP server dependencies
type Server struct {
	client    *catalog.Client
	views     *ViewRegistry
	paginator *pagination.Paginator
	templates *template.Template
	opts      Options
	router    chi.Router
	logger    zerolog.Logger
}

// New creates a new web server
func New(client *catalog.Client, opts Options) (*Server, error) {
	defaults := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.ViewTTL <= 0 {
		opts.ViewTTL = defaults.ViewTTL
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = defaults.AllowedOrigins
	}

	paginator, err := pagination.NewPaginator(opts.PageSize, opts.HasNext)
	if err != nil {
		return nil, err
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("web")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Server{
		client:    client,
		views:     NewViewRegistry(opts.ViewTTL),
		paginator: paginator,
		templates: templates,
		opts:      opts,
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Views returns the registry of live infinite-scroll views.
func (s *Server) Views() *ViewRegistry {
	return s.views
}

func (s *Server) setupMiddleware() {
	s.router.Use(hlog.NewHandler(s.logger))
	s.router.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	s.router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("route", route).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	// Paginated listing
	s.router.Get("/", s.handleIndex)

	// Infinite scroll
	s.router.Route("/feed", func(r chi.Router) {
		r.Get("/", s.handleFeed)
		r.Post("/{viewID}/more", s.handleMore)
		r.Delete("/{viewID}", s.handleDeleteView)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/products", s.handleAPIProducts)
		r.Get("/categories", s.handleAPICategories)
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s.router.Get("/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// ErrFetchInFlight is returned by Reset while a fetch is outstanding.
	ErrFetchInFlight = errors.New("fetch in flight")

	// ErrInvalidPageSize is returned by New for a page size below 1.
	ErrInvalidPageSize = errors.New("page size must be > 0")
)

// Prometheus metrics for loader operations.
var (
	loaderTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_loader_triggers_total",
		Help: "Visibility triggers by outcome (ignored, loaded, failed)",
	}, []string{"outcome"})

	loaderFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_loader_fetch_duration_seconds",
		Help:    "Duration of loader page fetches in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// PageSource fetches one offset/limit window of a collection.
// catalog.ProductSource implements it.
type PageSource interface {
	FetchPage(ctx context.Context, offset, limit int) ([]catalog.Item, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithHasMoreFromInitial seeds HasMore from the initial page:
// a short initial page means the list is already complete.
// By default HasMore starts true and the first trigger finds out.
func WithHasMoreFromInitial() Option {
	return func(l *Loader) {
		l.hasMoreFromInitial = true
	}
}

// WithFetchTimeout bounds each page fetch. Zero leaves it to the source.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.fetchTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// Loader incrementally loads a list, one window per trigger.
// It is safe for concurrent use.
type Loader struct {
	source   PageSource
	pageSize int

	hasMoreFromInitial bool
	fetchTimeout       time.Duration
	logger             zerolog.Logger

	// mu guards state; it is never held across a fetch.
	mu    sync.Mutex
	state ListState
}

// New creates a loader that continues after initial, fetching pageSize items per trigger.
func New(source PageSource, initial []catalog.Item, pageSize int, opts ...Option) (*Loader, error) {
	if source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPageSize, pageSize)
	}

	l := &Loader{
		source:   source,
		pageSize: pageSize,
		logger:   logging.NewLogger("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.state = l.initialState(initial)
	return l, nil
}

func (l *Loader) initialState(initial []catalog.Item) ListState {
	hasMore := true
	if l.hasMoreFromInitial {
		hasMore = len(initial) == l.pageSize
	}
	return ListState{
		Items:      append([]catalog.Item(nil), initial...),
		NextOffset: len(initial),
		HasMore:    hasMore,
	}
}

// PageSize returns the number of items requested per fetch.
func (l *Loader) PageSize() int {
	return l.pageSize
}

// Trigger handles one visibility signal. See Load.
func (l *Loader) Trigger(ctx context.Context) (Outcome, error) {
	r, err := l.Load(ctx)
	return r.Outcome, err
}

// Load handles one visibility signal and reports what it appended.
//
// While a fetch is in flight or the list is exhausted the signal is ignored.
// Otherwise the next window is fetched; the fetch is detached from ctx
// cancellation so a gone client cannot leave the gate half-open.
// A failed fetch returns OutcomeFailed with the error and changes nothing.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	l.mu.Lock()
	if l.state.IsLoading || !l.state.HasMore {
		loading, hasMore := l.state.IsLoading, l.state.HasMore
		l.mu.Unlock()

		l.logger.Debug().
			Bool("is_loading", loading).
			Bool("has_more", hasMore).
			Msg("Trigger ignored")
		loaderTriggersTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return Result{Outcome: OutcomeIgnored, HasMore: hasMore}, nil
	}
	l.state.IsLoading = true
	offset := l.state.NextOffset
	l.mu.Unlock()

	items, err := l.fetch(ctx, offset)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.IsLoading = false

	if err != nil {
		l.logger.Warn().
			Err(err).
			Int("offset", offset).
			Int("limit", l.pageSize).
			Msg("Page fetch failed - list unchanged")
		loaderTriggersTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return Result{Outcome: OutcomeFailed, Offset: offset, HasMore: l.state.HasMore},
			fmt.Errorf("load offset %d: %w", offset, err)
	}

	l.state.Items = append(l.state.Items, items...)
	l.state.NextOffset += len(items)
	l.state.HasMore = len(items) == l.pageSize

	l.logger.Debug().
		Int("offset", offset).
		Int("received", len(items)).
		Int("total", len(l.state.Items)).
		Bool("has_more", l.state.HasMore).
		Msg("Page appended")
	loaderTriggersTotal.WithLabelValues(string(OutcomeLoaded)).Inc()

	return Result{
		Outcome: OutcomeLoaded,
		Offset:  offset,
		Items:   append([]catalog.Item(nil), items...),
		HasMore: l.state.HasMore,
	}, nil
}

// fetch runs one page fetch. A panicking source counts as a failed fetch.
func (l *Loader) fetch(ctx context.Context, offset int) (items []catalog.Item, err error) {
	start := time.Now()
	defer func() {
		loaderFetchDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("page source panicked: %v", r)
		}
	}()

	fetchCtx := context.WithoutCancel(ctx)
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, l.fetchTimeout)
		defer cancel()
	}

	return l.source.FetchPage(fetchCtx, offset, l.pageSize)
}

// Snapshot returns a copy of the current state.
func (l *Loader) Snapshot() ListState {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state
	s.Items = append([]catalog.Item(nil), l.state.Items...)
	return s
}

// Reset replaces the list with a new initial page, e.g. after a filter change.
func (l *Loader) Reset(initial []catalog.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsLoading {
		return ErrFetchInFlight
	}

	l.state = l.initialState(initial)
	l.logger.Debug().Int("initial", len(initial)).Msg("List reset")
	return nil
}
